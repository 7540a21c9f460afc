package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	nhttp "github.com/chaos-io/cutout/util/http"
)

// ReadSource 读取本地图片或 http(s) 图片，返回文件名和原始字节
func ReadSource(ctx context.Context, cli nhttp.IClient, src string) (string, []byte, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return downloadImage(ctx, cli, src)
	}
	return openImage(src)
}

// downloadImage 下载图片
func downloadImage(ctx context.Context, cli nhttp.IClient, rawURL string) (string, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: rawURL,
		Method:     http.MethodGet,
		Response:   &data,
	}
	if err := cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Hostname()
	}
	return name, data, nil
}

// openImage 打开本地图片
func openImage(p string) (string, []byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	return filepath.Base(p), data, nil
}
