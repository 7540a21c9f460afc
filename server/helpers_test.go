package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/session"
)

// fakeProcessor 输出由模式和原始字节拼成，特殊前缀模拟失败
type fakeProcessor struct{}

func (fakeProcessor) Process(ctx context.Context, raw []byte, settings matting.Settings) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, []byte("corrupt")):
		return nil, fmt.Errorf("%w: unknown format", matting.ErrDecode)
	case bytes.HasPrefix(raw, []byte("model-fail")):
		return nil, fmt.Errorf("%w: backend unavailable", matting.ErrRemove)
	}
	out := fmt.Sprintf("out:%s", settings.Mode)
	if settings.Mode == matting.ModeHardEdge {
		out += fmt.Sprintf(":%d:%d", settings.Threshold, settings.Shrink)
	}
	return []byte(out + ":" + string(raw)), nil
}

type fakePreviewer struct{}

func (fakePreviewer) Preview(raw []byte, side int) ([]byte, error) {
	if bytes.HasPrefix(raw, []byte("corrupt")) {
		return nil, fmt.Errorf("%w: unknown format", matting.ErrDecode)
	}
	return []byte(fmt.Sprintf("preview(%d):%s", side, raw)), nil
}

type testEnv struct {
	t   *testing.T
	ts  *httptest.Server
	reg *metrics.Registry
	mgr *session.Manager
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	reg := metrics.NewRegistry()
	mgr := session.NewManager(fakeProcessor{}, time.Hour, reg)
	srv, err := New(mgr, fakePreviewer{}, reg, append([]Option{WithPreviewSide(64)}, opts...)...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, ts: ts, reg: reg, mgr: mgr}
}

// client 一个带 cookie 的浏览器，不自动跟随重定向
func (e *testEnv) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type file struct {
	name string
	data string
}

func multipartBody(t *testing.T, files ...file) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func (e *testEnv) do(cli *http.Client, method, path, contentType string, body io.Reader) response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(e.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := cli.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func (e *testEnv) get(cli *http.Client, path string) response {
	e.t.Helper()
	return e.do(cli, http.MethodGet, path, "", nil)
}

func (e *testEnv) postForm(cli *http.Client, path, form string) response {
	e.t.Helper()
	return e.do(cli, http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form))
}

func (e *testEnv) upload(cli *http.Client, path string, files ...file) response {
	e.t.Helper()
	body, ct := multipartBody(e.t, files...)
	return e.do(cli, http.MethodPost, path, ct, body)
}
