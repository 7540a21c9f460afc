package server

import (
	"fmt"
	"io"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/session"
)

type itemView struct {
	session.Panel
	DownloadURL string `json:"download_url,omitempty"`
	OriginalURL string `json:"original_url"`
	ResultURL   string `json:"result_url,omitempty"`
}

type passView struct {
	Settings matting.Settings `json:"settings"`
	Items    []itemView       `json:"items"`
	Deleted  int              `json:"deleted"`
	Failed   int              `json:"failed"`
	BatchURL string           `json:"batch_url,omitempty"`
	Uploaded []string         `json:"uploaded,omitempty"`
	Rejected []string         `json:"rejected,omitempty"`
}

func newPassView(pass *session.Pass) passView {
	v := passView{
		Settings: pass.Settings,
		Items:    make([]itemView, 0, len(pass.Panels)),
		Deleted:  pass.Deleted,
		Failed:   pass.Failed(),
	}
	for _, p := range pass.Panels {
		v.Items = append(v.Items, newItemView(p))
	}
	if len(pass.Manifest) > 0 {
		v.BatchURL = "/batch"
	}
	return v
}

func newItemView(p session.Panel) itemView {
	base := "/items/" + url.PathEscape(p.ID)
	v := itemView{Panel: p, OriginalURL: base + "/preview/original"}
	if p.State == session.StateProcessed {
		v.DownloadURL = base + "/download"
		v.ResultURL = base + "/preview/result"
	}
	return v
}

// pageData 页面模板的全部输入
type pageData struct {
	passView
	Modes        []matting.Mode
	MinThreshold int
	MaxThreshold int
	MinShrink    int
	MaxShrink    int
	Notice       string
}

func newPageData(pass *session.Pass, notice string) pageData {
	return pageData{
		passView:     newPassView(pass),
		Modes:        matting.Modes,
		MinThreshold: matting.MinThreshold,
		MaxThreshold: matting.MaxThreshold,
		MinShrink:    matting.MinShrink,
		MaxShrink:    matting.MaxShrink,
		Notice:       notice,
	}
}

// readUploads 读取 multipart 表单里的所有 files 字段
func (s *Server) readUploads(c *gin.Context) ([]session.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFiles, err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}

	uploads := make([]session.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		uploads = append(uploads, session.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

// rejected 把 Upload 返回的合并错误拆成逐条消息
func rejected(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
