package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/metrics"
)

var (
	ErrUnknownItem          = errors.New("unknown item")
	ErrNotProcessed         = errors.New("item not processed")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
)

type State string

const (
	StateUnprocessed State = "unprocessed"
	StateProcessed   State = "processed"
	StateDeleted     State = "deleted"
)

type Action string

const (
	ActionRecompute Action = "recompute"
	ActionDelete    Action = "delete"
	ActionDownload  Action = "download"
)

// 错误分类，展示给用户并作为指标标签
const (
	KindDecode   = "decode"
	KindModel    = "model"
	KindConfig   = "config"
	KindInternal = "internal"
)

func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, matting.ErrDecode):
		return KindDecode
	case errors.Is(err, matting.ErrRemove):
		return KindModel
	case errors.Is(err, matting.ErrInvalidParams):
		return KindConfig
	default:
		return KindInternal
	}
}

type Upload struct {
	Name string
	Data []byte
}

// Panel 一个条目在一次渲染中的结果
type Panel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OutputName string `json:"output_name"`
	State      State  `json:"state"`
	Output     []byte `json:"-"`
	Err        error  `json:"-"`
	ErrKind    string `json:"error_kind,omitempty"`
	ErrMessage string `json:"error,omitempty"`
}

func (p *Panel) fail(err error) {
	p.Err = err
	p.ErrKind = ErrorKind(err)
	p.ErrMessage = err.Error()
}

// Pass 一次交互触发的完整渲染
type Pass struct {
	Settings matting.Settings `json:"settings"`
	Panels   []Panel          `json:"items"`
	Manifest Manifest         `json:"-"`
	Deleted  int              `json:"deleted"`
}

func (p *Pass) Failed() int {
	n := 0
	for _, panel := range p.Panels {
		if panel.Err != nil {
			n++
		}
	}
	return n
}

// Session 一个用户会话的全部状态。每次交互持有锁串行执行，
// 同一会话内只有一个写者。
type Session struct {
	mu       sync.Mutex
	id       string
	items    *Items
	cache    *Cache
	deleted  *DeletionSet
	failures map[string]error // 最近一次失败，成功、删除或重置时清除
	settings matting.Settings
	reg      *metrics.Registry
}

type Option func(s *Session)

func WithRegistry(reg *metrics.Registry) Option {
	return func(s *Session) {
		s.reg = reg
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

func New(proc Processor, opts ...Option) *Session {
	s := &Session{
		id:       ksuid.New().String(),
		items:    newItems(),
		cache:    NewCache(proc),
		deleted:  newDeletionSet(),
		failures: make(map[string]error),
		settings: matting.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Upload 加入新条目，不支持的扩展名被拒绝，其余文件照常加入
func (s *Session) Upload(ctx context.Context, files ...Upload) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ids  []string
		errs []error
	)
	for _, f := range files {
		it, err := s.items.Add(f.Name, f.Data)
		if err != nil {
			s.reg.Inc(ctx, metrics.ItemsRejected, nil, 1)
			errs = append(errs, err)
			continue
		}
		ids = append(ids, it.ID)
		s.reg.Inc(ctx, metrics.ItemsUploaded, nil, 1)
		log.Ctx(ctx).Info().Str("session", s.id).Str("item", it.ID).Int("bytes", len(it.Raw)).Msg("item uploaded")
	}
	return ids, errors.Join(errs...)
}

func (s *Session) Settings() matting.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Configure 只影响之后的计算，已缓存的结果不会被重新生成
func (s *Session) Configure(settings matting.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// Render 按最新上传在前的顺序处理所有可见条目，未缓存的条目串行计算。
// 单个条目失败只记录在它自己的 Panel 上，不影响其它条目。
func (s *Session) Render(ctx context.Context) *Pass {
	s.mu.Lock()
	defer s.mu.Unlock()

	pass := &Pass{Settings: s.settings, Deleted: s.deleted.Len()}
	for _, it := range s.items.Newest(s.deleted.Has) {
		panel := Panel{
			ID:         it.ID,
			Name:       it.Name,
			OutputName: OutputName(it.ID),
			State:      StateUnprocessed,
		}

		hit := s.cache.Has(it.ID)
		out, err := s.guard(ctx, it, func() ([]byte, error) {
			return s.cache.GetOrCompute(ctx, it.ID, it.Raw, s.settings)
		})
		if err != nil {
			panel.fail(err)
			pass.Panels = append(pass.Panels, panel)
			continue
		}

		if hit {
			s.reg.Inc(ctx, metrics.CacheHits, nil, 1)
		} else {
			s.reg.Inc(ctx, metrics.CacheMisses, nil, 1)
			delete(s.failures, it.ID)
		}
		if prev, ok := s.failures[it.ID]; ok {
			// 重新计算失败时旧结果仍然保留，同时提示失败原因
			panel.fail(prev)
		}

		panel.State = StateProcessed
		panel.Output = out
		pass.Panels = append(pass.Panels, panel)
		pass.Manifest = append(pass.Manifest, Entry{Name: panel.OutputName, Data: out})
	}
	return pass
}

// recompute 用当前配置重新计算并覆盖缓存
func (s *Session) recompute(ctx context.Context, id string) (Panel, error) {
	it, err := s.active(id)
	if err != nil {
		return Panel{}, err
	}

	panel := Panel{ID: it.ID, Name: it.Name, OutputName: OutputName(it.ID), State: StateUnprocessed}
	if s.cache.Has(id) {
		panel.State = StateProcessed
	}

	s.reg.Inc(ctx, metrics.Recomputes, nil, 1)
	out, err := s.guard(ctx, it, func() ([]byte, error) {
		return s.cache.Recompute(ctx, it.ID, it.Raw, s.settings)
	})
	if err != nil {
		panel.fail(err)
		return panel, err
	}
	delete(s.failures, it.ID)

	panel.State = StateProcessed
	panel.Output = out
	return panel, nil
}

// delete 隐藏条目并释放缓存；撤销删除后需要重新计算
func (s *Session) delete(ctx context.Context, id string) error {
	if _, err := s.active(id); err != nil {
		return err
	}
	s.deleted.Add(id)
	s.cache.Evict(id)
	delete(s.failures, id)

	s.reg.Inc(ctx, metrics.Deletions, nil, 1)
	log.Ctx(ctx).Info().Str("session", s.id).Str("item", id).Msg("item deleted")
	return nil
}

// UndoDeletes 清空删除集合，返回恢复的条目数
func (s *Session) UndoDeletes(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.deleted.Clear()
	log.Ctx(ctx).Info().Str("session", s.id).Int("restored", n).Msg("deletions undone")
	return n
}

// Reset 清空缓存和删除集合，上传的条目保留，下次渲染重新计算
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	s.deleted.Clear()
	s.failures = make(map[string]error)
	log.Ctx(ctx).Info().Str("session", s.id).Msg("session reset")
}

// download 返回已缓存的结果，不触发计算
func (s *Session) download(id string) (string, []byte, error) {
	if _, err := s.active(id); err != nil {
		return "", nil, err
	}
	out, ok := s.cache.Get(id)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrNotProcessed, id)
	}
	return OutputName(id), out, nil
}

// Original 原始上传字节，用于预览
func (s *Session) Original(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.active(id)
	if err != nil {
		return nil, err
	}
	return it.Raw, nil
}

func (s *Session) State(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items.Get(id); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	switch {
	case s.deleted.Has(id):
		return StateDeleted, nil
	case s.cache.Has(id):
		return StateProcessed, nil
	default:
		return StateUnprocessed, nil
	}
}

// Dispatch 按条目 ID 和动作分发单条目操作，所有单条目请求都经过这里
func (s *Session) Dispatch(ctx context.Context, id string, action Action) (Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case ActionRecompute:
		return s.recompute(ctx, id)
	case ActionDelete:
		if err := s.delete(ctx, id); err != nil {
			return Panel{}, err
		}
		return Panel{ID: id, OutputName: OutputName(id), State: StateDeleted}, nil
	case ActionDownload:
		it, err := s.active(id)
		if err != nil {
			return Panel{}, err
		}
		name, out, err := s.download(id)
		if err != nil {
			return Panel{}, err
		}
		return Panel{ID: id, Name: it.Name, OutputName: name, State: StateProcessed, Output: out}, nil
	default:
		return Panel{}, fmt.Errorf("unknown action %q", action)
	}
}

// Stats 会话概况
func (s *Session) Stats() (items, cached, deleted, cacheBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len(), s.cache.Len(), s.deleted.Len(), s.cache.Size()
}

func (s *Session) active(id string) (*Item, error) {
	it, ok := s.items.Get(id)
	if !ok || s.deleted.Has(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	return it, nil
}

// guard 单条目的失败边界：记录错误和指标，模型调用 panic 也转成错误
func (s *Session) guard(ctx context.Context, it *Item, fn func() ([]byte, error)) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process %q panicked: %v", it.ID, r)
		}
		if err != nil {
			s.failures[it.ID] = err
			kind := ErrorKind(err)
			s.reg.Inc(ctx, metrics.ProcessFailures, map[string]string{"kind": kind}, 1)
			log.Ctx(ctx).Warn().Err(err).Str("session", s.id).Str("item", it.ID).Str("kind", kind).Msg("item processing failed")
		}
	}()
	return fn()
}
