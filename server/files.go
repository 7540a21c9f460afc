package server

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/cutout/session"
)

func attachment(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, contentType, data)
}

// download 只返回缓存里的字节，不会触发计算
func (s *Server) download(c *gin.Context) {
	panel, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionDownload)
	if err != nil {
		abortText(c, err)
		return
	}
	attachment(c, panel.OutputName, "image/png", panel.Output)
}

// batch 渲染一次后打包当前清单
func (s *Server) batch(c *gin.Context) {
	pass := sessionFrom(c).Render(c.Request.Context())
	data, err := pass.Manifest.Archive()
	if err != nil {
		abortText(c, fmt.Errorf("build archive: %w", err))
		return
	}
	attachment(c, session.ArchiveName, "application/zip", data)
}

func (s *Server) previewOriginal(c *gin.Context) {
	raw, err := sessionFrom(c).Original(c.Param("id"))
	if err != nil {
		abortText(c, err)
		return
	}
	s.writePreview(c, raw)
}

func (s *Server) previewResult(c *gin.Context) {
	panel, err := sessionFrom(c).Dispatch(c.Request.Context(), c.Param("id"), session.ActionDownload)
	if err != nil {
		abortText(c, err)
		return
	}
	s.writePreview(c, panel.Output)
}

func (s *Server) writePreview(c *gin.Context, raw []byte) {
	data, err := s.preview.Preview(raw, s.previewSide)
	if err != nil {
		abortText(c, fmt.Errorf("preview: %w", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}
