package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/session"
)

const (
	requestIDHeader = "X-Request-ID"
	sessionCookie   = "cutout_session"
	sessionKey      = "session"
)

// RequestLogger 给每个请求挂上带 request id 的 zerolog logger，并统计请求数
func RequestLogger(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		rid := req.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		logger := log.With().
			Str("request_id", rid).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Request = req.WithContext(logger.WithContext(req.Context()))

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"method": req.Method,
			"path":   route,
			"status": statusClass(status),
		}
		reg.Inc(c.Request.Context(), metrics.HTTPRequests, labels, 1)

		duration := time.Since(start)
		if status >= http.StatusInternalServerError || len(c.Errors) > 0 {
			reg.Inc(c.Request.Context(), metrics.HTTPRequestsErrs, labels, 1)
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			logger.Error().
				Err(err).
				Int("status", status).
				Dur("duration", duration).
				Msg("http request failed")
			return
		}
		logger.Info().
			Int("status", status).
			Dur("duration", duration).
			Msg("http request served")
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "0"
	}
}

// Sessions 通过 cookie 找到会话，没有或已过期时新建并下发 cookie
func Sessions(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(sessionCookie)
		sess, created := mgr.Acquire(c.Request.Context(), id)
		if created {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     sessionCookie,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		logger := log.Ctx(c.Request.Context()).With().Str("session", sess.ID()).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
