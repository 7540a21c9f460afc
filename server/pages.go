package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/session"
)

// render 执行一次完整渲染并输出页面
func (s *Server) render(c *gin.Context, status int, notice string) {
	pass := sessionFrom(c).Render(c.Request.Context())
	c.HTML(status, "index.html", newPageData(pass, notice))
}

func (s *Server) back(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) index(c *gin.Context) {
	s.render(c, http.StatusOK, "")
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	uploads, err := s.readUploads(c)
	if err != nil {
		s.render(c, statusOf(err), err.Error())
		return
	}

	ids, err := sessionFrom(c).Upload(c.Request.Context(), uploads...)
	if err != nil {
		status := http.StatusOK
		if len(ids) == 0 {
			status = statusOf(err)
		}
		s.render(c, status, strings.Join(rejected(err), "; "))
		return
	}
	s.back(c)
}

func (s *Server) configure(c *gin.Context) {
	sess := sessionFrom(c)
	settings, err := settingsFromForm(c, sess.Settings())
	if err == nil {
		err = sess.Configure(settings)
	}
	if err != nil {
		s.render(c, statusOf(err), err.Error())
		return
	}
	s.back(c)
}

// settingsFromForm 表单里缺省的字段沿用当前配置
func settingsFromForm(c *gin.Context, cur matting.Settings) (matting.Settings, error) {
	if v, ok := c.GetPostForm("mode"); ok {
		mode, err := matting.ParseMode(v)
		if err != nil {
			return cur, err
		}
		cur.Mode = mode
	}
	for field, dst := range map[string]*int{"threshold": &cur.Threshold, "shrink": &cur.Shrink} {
		v, ok := c.GetPostForm(field)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cur, fmt.Errorf("%w: %s %q is not a number", matting.ErrInvalidParams, field, v)
		}
		*dst = n
	}
	return cur, nil
}

// recompute 失败时结果仍然保留在面板上，页面会显示失败原因
func (s *Server) recompute(c *gin.Context) {
	_, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionRecompute)
	if err != nil && statusOf(err) == http.StatusNotFound {
		s.render(c, http.StatusNotFound, err.Error())
		return
	}
	s.back(c)
}

func (s *Server) delete(c *gin.Context) {
	if _, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionDelete); err != nil {
		s.render(c, statusOf(err), err.Error())
		return
	}
	s.back(c)
}

func (s *Server) undoDeletes(c *gin.Context) {
	sessionFrom(c).UndoDeletes(c.Request.Context())
	s.back(c)
}

func (s *Server) reset(c *gin.Context) {
	sessionFrom(c).Reset(c.Request.Context())
	s.back(c)
}
