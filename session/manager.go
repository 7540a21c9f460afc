package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/cutout/metrics"
)

type managed struct {
	sess     *Session
	lastSeen time.Time
}

// Manager 按 ksuid 管理会话，定时清理闲置会话以释放缓存
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*managed
	proc     Processor
	reg      *metrics.Registry
	ttl      time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

func NewManager(proc Processor, ttl time.Duration, reg *metrics.Registry) *Manager {
	return &Manager{
		sessions: make(map[string]*managed),
		proc:     proc,
		reg:      reg,
		ttl:      ttl,
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Acquire 返回 id 对应的会话；id 为空或已过期时新建，created 为 true
func (m *Manager) Acquire(ctx context.Context, id string) (sess *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		return e.sess, false
	}

	sess = New(m.proc, WithID(ksuid.New().String()), WithRegistry(m.reg))
	m.sessions[sess.ID()] = &managed{sess: sess, lastSeen: m.now()}
	m.reg.Inc(ctx, metrics.SessionsCreated, nil, 1)
	log.Ctx(ctx).Info().Str("session", sess.ID()).Msg("session created")
	return sess, true
}

// Stats 所有会话的汇总，用于健康检查
type Stats struct {
	Sessions   int `json:"sessions"`
	Items      int `json:"items"`
	Cached     int `json:"cached"`
	Deleted    int `json:"deleted"`
	CacheBytes int `json:"cache_bytes"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.sess)
	}
	m.mu.Unlock()

	st := Stats{Sessions: len(sessions)}
	for _, sess := range sessions {
		items, cached, deleted, size := sess.Stats()
		st.Items += items
		st.Cached += cached
		st.Deleted += deleted
		st.CacheBytes += size
	}
	return st
}

// Sweep 删除闲置超过 ttl 的会话，ttl <= 0 时不清理
func (m *Manager) Sweep(ctx context.Context) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := m.now().Add(-m.ttl)
	n := 0
	for id, e := range m.sessions {
		if e.lastSeen.Before(deadline) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.reg.Inc(ctx, metrics.SessionsExpired, nil, int64(n))
		log.Ctx(ctx).Info().Int("expired", n).Int("remaining", len(m.sessions)).Msg("idle sessions swept")
	}
	return n
}

// Start 按 every 间隔定时执行 Sweep
func (m *Manager) Start(every time.Duration) error {
	if every <= 0 {
		return nil
	}
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		m.Sweep(log.Logger.WithContext(context.Background()))
	})
	if err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop 停止定时任务并等待正在执行的清理结束
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
}
