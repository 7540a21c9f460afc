package server

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/session"
)

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	resp := env.get(cli, "/healthz")
	assert.Equal(t, http.StatusOK, resp.status)
	var health struct {
		Status   string        `json:"status"`
		Sessions session.Stats `json:"sessions"`
	}
	resp.json(t, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Sessions.Sessions)

	env.upload(cli, "/upload", file{"a.png", "A"}, file{"b.png", "B"})
	env.get(cli, "/")
	env.postForm(cli, "/items/b.png/delete", "")
	env.get(cli, "/healthz").json(t, &health)
	assert.Equal(t, session.Stats{
		Sessions:   1,
		Items:      2,
		Cached:     1,
		Deleted:    1,
		CacheBytes: len("out:generic:A"),
	}, health.Sessions)
	resp = env.get(cli, "/metrics")
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), metrics.SessionsCreated)
	assert.Contains(t, string(resp.body), metrics.HTTPRequests)

	var snapshot map[string]int64
	env.get(cli, "/metrics.json").json(t, &snapshot)
	assert.NotEmpty(t, snapshot)
}

func TestServer_RequestID(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	resp := env.get(cli, "/healthz")
	assert.NotEmpty(t, resp.header.Get(requestIDHeader))

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")
	r, err := cli.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, "abc-123", r.Header.Get(requestIDHeader))
}

func TestServer_PageFlow(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	resp := env.get(cli, "/")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), "还没有图片")

	resp = env.upload(cli, "/upload", file{"a.png", "A"}, file{"b.jpg", "B"})
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "/", resp.header.Get("Location"))

	page := string(env.get(cli, "/").body)
	assert.Contains(t, page, "a.png")
	assert.Contains(t, page, "b_no_bg.png")
	assert.Contains(t, page, "/batch")
	assert.Less(t, strings.Index(page, "b.jpg"), strings.Index(page, "a.png"))

	first := env.get(cli, "/items/a.png/download")
	require.Equal(t, http.StatusOK, first.status)
	assert.Equal(t, "out:generic:A", string(first.body))

	// 切换到硬边模式后已缓存的结果保持不变
	resp = env.postForm(cli, "/settings", "mode=hard-edge&threshold=150&shrink=2")
	require.Equal(t, http.StatusSeeOther, resp.status)
	page = string(env.get(cli, "/").body)
	assert.Contains(t, page, `value="hard-edge" checked`)
	assert.Equal(t, first.body, env.get(cli, "/items/a.png/download").body)

	resp = env.postForm(cli, "/items/a.png/recompute", "")
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, "out:hard-edge:150:2:A", string(env.get(cli, "/items/a.png/download").body))

	resp = env.postForm(cli, "/items/b.jpg/delete", "")
	require.Equal(t, http.StatusSeeOther, resp.status)
	page = string(env.get(cli, "/").body)
	assert.NotContains(t, page, "b.jpg")
	assert.Contains(t, page, "撤销删除（1）")

	resp = env.postForm(cli, "/deletions/undo", "")
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, http.StatusConflict, env.get(cli, "/items/b.jpg/download").status)
	assert.Contains(t, string(env.get(cli, "/").body), "b.jpg")
	assert.Equal(t, http.StatusOK, env.get(cli, "/items/b.jpg/download").status)

	resp = env.postForm(cli, "/reset", "")
	require.Equal(t, http.StatusSeeOther, resp.status)
	assert.Equal(t, http.StatusConflict, env.get(cli, "/items/a.png/download").status)
}

func TestServer_SettingsRejected(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	tests := []struct {
		name string
		form string
	}{
		{"阈值越界", "mode=hard-edge&threshold=300&shrink=1"},
		{"半径越界", "mode=hard-edge&threshold=200&shrink=6"},
		{"未知模式", "mode=magic"},
		{"非数字", "mode=hard-edge&threshold=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postForm(cli, "/settings", tt.form)
			assert.Equal(t, http.StatusBadRequest, resp.status)
			assert.Contains(t, string(resp.body), "invalid matting params")
		})
	}

	// 非硬边模式下忽略越界的滑块值
	resp := env.postForm(cli, "/settings", "mode=hair&threshold=999&shrink=9")
	assert.Equal(t, http.StatusSeeOther, resp.status)
}

func TestServer_UploadRejected(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	resp := env.upload(cli, "/upload", file{"notes.txt", "x"})
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.status)
	assert.Contains(t, string(resp.body), "notes.txt")

	resp = env.upload(cli, "/upload", file{"ok.png", "O"}, file{"notes.txt", "x"})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), "ok.png")
	assert.Contains(t, string(resp.body), "unsupported file extension")

	resp = env.upload(cli, "/upload")
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestServer_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t, WithMaxUploadBytes(1024))
	cli := env.client()

	resp := env.upload(cli, "/upload", file{"big.png", strings.Repeat("x", 4096)})
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestServer_FailedItemShownOnPage(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	env.upload(cli, "/upload", file{"good.png", "G"}, file{"broken.png", "corrupt"})
	page := string(env.get(cli, "/").body)
	assert.Contains(t, page, "处理失败（decode）")
	assert.Contains(t, page, "1 张处理失败")
	assert.Contains(t, page, "good_no_bg.png")
}

func TestServer_DuplicateNames(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	env.upload(cli, "/upload", file{"a.png", "1"}, file{"a.png", "2"})
	page := string(env.get(cli, "/").body)
	assert.Contains(t, page, "/items/a%20%282%29.png/recompute")

	resp := env.get(cli, "/items/"+url.PathEscape("a (2).png")+"/download")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "out:generic:2", string(resp.body))
	assert.Contains(t, resp.header.Get("Content-Disposition"), "a (2)_no_bg.png")
}

func TestServer_DownloadAndBatch(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	env.upload(cli, "/upload", file{"a.png", "A"}, file{"b.jpg", "B"}, file{"c.webp", "C"})
	assert.Equal(t, http.StatusConflict, env.get(cli, "/items/a.png/download").status)
	assert.Equal(t, http.StatusNotFound, env.get(cli, "/items/zzz.png/download").status)

	env.postForm(cli, "/items/c.webp/delete", "")
	resp := env.get(cli, "/batch")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "application/zip", resp.header.Get("Content-Type"))
	assert.Contains(t, resp.header.Get("Content-Disposition"), "batch_cutout_v5.zip")

	zr, err := zip.NewReader(bytes.NewReader(resp.body), int64(len(resp.body)))
	require.NoError(t, err)
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		got[f.Name] = string(b)
	}
	assert.Equal(t, map[string]string{
		"a_no_bg.png": "out:generic:A",
		"b_no_bg.png": "out:generic:B",
	}, got)

	dl := env.get(cli, "/items/b.jpg/download")
	assert.Equal(t, "image/png", dl.header.Get("Content-Type"))
	assert.Equal(t, got["b_no_bg.png"], string(dl.body))
}

func TestServer_Previews(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	env.upload(cli, "/upload", file{"a.png", "A"}, file{"x.png", "corrupt"})
	resp := env.get(cli, "/items/a.png/preview/original")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "preview(64):A", string(resp.body))
	assert.Equal(t, "no-store", resp.header.Get("Cache-Control"))

	assert.Equal(t, http.StatusConflict, env.get(cli, "/items/a.png/preview/result").status)
	env.get(cli, "/")
	resp = env.get(cli, "/items/a.png/preview/result")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "preview(64):out:generic:A", string(resp.body))

	assert.Equal(t, http.StatusUnprocessableEntity, env.get(cli, "/items/x.png/preview/original").status)
	assert.Equal(t, http.StatusNotFound, env.get(cli, "/items/nope.png/preview/original").status)
}

func TestServer_SessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.client(), env.client()

	env.upload(alice, "/upload", file{"a.png", "A"})
	assert.Contains(t, string(env.get(alice, "/").body), "a.png")
	assert.NotContains(t, string(env.get(bob, "/").body), "a.png")
	assert.Equal(t, http.StatusNotFound, env.get(bob, "/items/a.png/download").status)
	assert.Equal(t, 2, env.mgr.Stats().Sessions)
}

func TestServer_SlidersOnlyInHardEdge(t *testing.T) {
	env := newTestEnv(t)
	cli := env.client()

	page := string(env.get(cli, "/").body)
	assert.NotContains(t, page, `name="threshold"`)
	assert.NotContains(t, page, `name="shrink"`)

	// 切换模式的表单不带滑块，沿用当前值
	require.Equal(t, http.StatusSeeOther, env.postForm(cli, "/settings", "mode=hard-edge").status)
	page = string(env.get(cli, "/").body)
	assert.Contains(t, page, `<input type="range" name="shrink" min="0" max="5" step="1" value="1">`)
	assert.Contains(t, page, `<input type="range" name="threshold" min="100" max="250" step="1" value="200">`)

	require.Equal(t, http.StatusSeeOther, env.postForm(cli, "/settings", "mode=hair").status)
	assert.NotContains(t, string(env.get(cli, "/").body), `type="range"`)
}
