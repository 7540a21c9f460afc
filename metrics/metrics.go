package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	ItemsUploaded    = "cutout_items_uploaded_total"
	ItemsRejected    = "cutout_items_rejected_total"
	CacheHits        = "cutout_cache_hits_total"
	CacheMisses      = "cutout_cache_misses_total"
	Recomputes       = "cutout_recomputes_total"
	Deletions        = "cutout_deletions_total"
	ProcessFailures  = "cutout_process_failures_total"
	SessionsCreated  = "cutout_sessions_created_total"
	SessionsExpired  = "cutout_sessions_expired_total"
	HTTPRequests     = "http_requests_total"
	HTTPRequestsErrs = "http_requests_errors_total"
)

// Registry 本地计数器，同时镜像到 OpenTelemetry counter
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64 // key = fullKey(name, labels)
	meter    metric.Meter
	otelCtrs map[string]metric.Int64Counter
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
		meter:    otel.GetMeterProvider().Meter("cutout"),
		otelCtrs: make(map[string]metric.Int64Counter),
	}
}

func fullKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc 计数器加 n。nil Registry 上调用是空操作，方便测试里不注入
func (r *Registry) Inc(ctx context.Context, name string, labels map[string]string, n int64) {
	if r == nil {
		return
	}
	key := fullKey(name, labels)

	r.mu.RLock()
	c := r.counters[key]
	inst := r.otelCtrs[name]
	r.mu.RUnlock()

	if c == nil || inst == nil {
		r.mu.Lock()
		if c = r.counters[key]; c == nil {
			c = &atomic.Int64{}
			r.counters[key] = c
		}
		if inst = r.otelCtrs[name]; inst == nil {
			ctr, err := r.meter.Int64Counter(name)
			if err == nil {
				r.otelCtrs[name] = ctr
				inst = ctr
			}
		}
		r.mu.Unlock()
	}
	c.Add(n)

	if inst != nil {
		attrs := make([]attribute.KeyValue, 0, len(labels))
		for k, v := range labels {
			attrs = append(attrs, attribute.String(k, v))
		}
		inst.Add(ctx, n, metric.WithAttributes(attrs...))
	}
}

// Value 读取某个计数器当前值
func (r *Registry) Value(name string, labels map[string]string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.counters[fullKey(name, labels)]; c != nil {
		return c.Load()
	}
	return 0
}

func (r *Registry) SnapshotLines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %d", k, r.counters[k].Load()))
	}
	return lines
}

func (r *Registry) SnapshotJSON() map[string]int64 {
	out := make(map[string]int64)
	r.mu.RLock()
	for k, v := range r.counters {
		out[k] = v.Load()
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) GinHandlerText(c *gin.Context) {
	c.String(http.StatusOK, strings.Join(r.SnapshotLines(), "\n")+"\n")
}

func (r *Registry) GinHandlerJSON(c *gin.Context) {
	c.JSON(http.StatusOK, r.SnapshotJSON())
}
