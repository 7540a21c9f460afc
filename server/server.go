package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/session"
)

//go:embed templates/*.html
var templates embed.FS

const (
	defaultPreviewSide = 480
	defaultMaxUpload   = 64 << 20
	shutdownTimeout    = 10 * time.Second
)

// Previewer 生成页面展示用的缩略图
type Previewer interface {
	Preview(raw []byte, side int) ([]byte, error)
}

type Server struct {
	mgr         *session.Manager
	preview     Previewer
	reg         *metrics.Registry
	previewSide int
	maxUpload   int64
	engine      *gin.Engine
}

type Option func(s *Server)

func WithPreviewSide(side int) Option {
	return func(s *Server) {
		s.previewSide = side
	}
}

// WithMaxUploadBytes 单次上传请求体上限
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func New(mgr *session.Manager, preview Previewer, reg *metrics.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		mgr:         mgr,
		preview:     preview,
		reg:         reg,
		previewSide: defaultPreviewSide,
		maxUpload:   defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(s)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"pathEscape": url.PathEscape,
		"modeLabel":  func(m matting.Mode) string { return m.Label() },
	}).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(reg))
	engine.SetHTMLTemplate(tmpl)
	engine.MaxMultipartMemory = s.maxUpload
	s.engine = engine
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", s.reg.GinHandlerText)
	s.engine.GET("/metrics.json", s.reg.GinHandlerJSON)

	web := s.engine.Group("/", Sessions(s.mgr))
	web.GET("/", s.index)
	web.POST("/upload", s.upload)
	web.POST("/settings", s.configure)
	web.POST("/items/:id/recompute", s.recompute)
	web.POST("/items/:id/delete", s.delete)
	web.POST("/deletions/undo", s.undoDeletes)
	web.POST("/reset", s.reset)
	web.GET("/items/:id/download", s.download)
	web.GET("/items/:id/preview/original", s.previewOriginal)
	web.GET("/items/:id/preview/result", s.previewResult)
	web.GET("/batch", s.batch)

	api := s.engine.Group("/api", Sessions(s.mgr))
	api.GET("/items", s.apiItems)
	api.POST("/items", s.apiUpload)
	api.GET("/items/:id", s.apiItem)
	api.PUT("/settings", s.apiConfigure)
	api.POST("/items/:id/recompute", s.apiRecompute)
	api.DELETE("/items/:id", s.apiDelete)
	api.POST("/deletions/undo", s.apiUndoDeletes)
	api.POST("/reset", s.apiReset)
}

// health 进程内所有会话的占用情况
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.mgr.Stats(),
	})
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 addr 直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("http server stopped")
	return nil
}
