package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	nhttp "github.com/chaos-io/cutout/util/http"
)

const DefaultModel = "u2net"

// ServerRemBG 调用 `rembg s` 启动的 HTTP 服务
type ServerRemBG struct {
	baseURL string
	model   string
	cli     nhttp.IClient
}

func NewServerRemBG(baseURL, model string, cli nhttp.IClient) *ServerRemBG {
	if model == "" {
		model = DefaultModel
	}
	return &ServerRemBG{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		cli:     cli,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" \
	  -F "a=true" -F "af=240" -F "ab=10" -F "ae=10"
*/
func (s *ServerRemBG) Remove(ctx context.Context, img image.Image, opts Options) (image.Image, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	_ = writer.WriteField("model", s.model)
	if opts.AlphaMatting {
		_ = writer.WriteField("a", "true")
		_ = writer.WriteField("af", strconv.Itoa(opts.ForegroundThreshold))
		_ = writer.WriteField("ab", strconv.Itoa(opts.BackgroundThreshold))
		_ = writer.WriteField("ae", strconv.Itoa(opts.ErodeSize))
	}
	_ = writer.Close()

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + "/api/remove",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	log.Ctx(ctx).Debug().Str("model", s.model).Bool("alpha_matting", opts.AlphaMatting).Int("bytes", len(out)).Msg("rembg server responded")

	res, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}
