package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/session"
)

func (s *Server) apiItems(c *gin.Context) {
	pass := sessionFrom(c).Render(c.Request.Context())
	c.JSON(http.StatusOK, newPassView(pass))
}

// apiItem 单个条目的状态，不触发计算
func (s *Server) apiItem(c *gin.Context) {
	id := c.Param("id")
	state, err := sessionFrom(c).State(id)
	if err != nil {
		abortJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          id,
		"output_name": session.OutputName(id),
		"state":       state,
	})
}

// apiUpload 上传后立即渲染，返回新的条目列表；部分文件被拒绝时仍返回 201
func (s *Server) apiUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	uploads, err := s.readUploads(c)
	if err != nil {
		abortJSON(c, err)
		return
	}

	sess := sessionFrom(c)
	ids, err := sess.Upload(c.Request.Context(), uploads...)
	if len(ids) == 0 {
		abortJSON(c, err)
		return
	}

	view := newPassView(sess.Render(c.Request.Context()))
	view.Uploaded = ids
	view.Rejected = rejected(err)
	c.JSON(http.StatusCreated, view)
}

func (s *Server) apiConfigure(c *gin.Context) {
	sess := sessionFrom(c)
	settings := sess.Settings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		abortJSON(c, fmt.Errorf("%w: invalid request body: %w", matting.ErrInvalidParams, err))
		return
	}
	if err := sess.Configure(settings); err != nil {
		abortJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, newPassView(sess.Render(c.Request.Context())))
}

// apiRecompute 失败时也返回面板，便于展示保留的旧结果和失败原因
func (s *Server) apiRecompute(c *gin.Context) {
	panel, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionRecompute)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusNotFound {
			abortJSON(c, err)
			return
		}
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, newItemView(panel))
		return
	}
	c.JSON(http.StatusOK, newItemView(panel))
}

func (s *Server) apiDelete(c *gin.Context) {
	if _, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionDelete); err != nil {
		abortJSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) apiUndoDeletes(c *gin.Context) {
	n := sessionFrom(c).UndoDeletes(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"restored": n})
}

func (s *Server) apiReset(c *gin.Context) {
	sessionFrom(c).Reset(c.Request.Context())
	c.Status(http.StatusNoContent)
}
