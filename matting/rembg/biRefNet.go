package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	nhttp "github.com/chaos-io/cutout/util/http"
)

const (
	BiRefNetModel = "BiRefNet"

	// workflow.json 中 LoadImage 节点的占位文件名
	workflowImagePlaceholder = "MyImage.png"
	defaultPollInterval      = time.Second
)

//go:embed workflow.json
var workflowData string

// BiRefNetRemBG 通过 ComfyUI 上的 BiRefNet 工作流抠图
type BiRefNetRemBG struct {
	baseURL      string
	cli          nhttp.IClient
	workflow     string
	pollInterval time.Duration
}

func NewBiRefNetRemBG(baseURL string, cli nhttp.IClient, pollInterval time.Duration) *BiRefNetRemBG {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &BiRefNetRemBG{
		baseURL:      strings.TrimRight(baseURL, "/"),
		cli:          cli,
		workflow:     workflowData,
		pollInterval: pollInterval,
	}
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, img image.Image, opts Options) (image.Image, error) {
	if opts.AlphaMatting {
		return nil, fmt.Errorf("%s: %w", BiRefNetModel, ErrAlphaMattingUnsupported)
	}

	uploaded, err := b.uploadImage(ctx, ksuid.New().String()+".png", img)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded)
	if err != nil {
		return nil, err
	}

	out, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	data, err := b.view(ctx, out)
	if err != nil {
		return nil, err
	}

	res, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return res, nil
}

// imageRef ComfyUI 中文件的引用，上传响应和 history 输出都是这个结构
type imageRef struct {
	Name      string `json:"name,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, name string, img image.Image) (*imageRef, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	_ = writer.Close()

	resp := &imageRef{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/upload/image",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	log.Ctx(ctx).Debug().Str("name", resp.Name).Str("subfolder", resp.Subfolder).Msg("image uploaded to comfyui")
	return resp, nil
}

type promptResp struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, uploaded *imageRef) (string, error) {
	imageName := uploaded.Name
	if uploaded.Subfolder != "" {
		imageName = path.Join(uploaded.Subfolder, uploaded.Name)
	}

	// 替换 LoadImage 的文件名后再解析，保证提交的是合法 JSON
	nameJSON, _ := json.Marshal(imageName)
	workflow := strings.Replace(b.workflow, `"`+workflowImagePlaceholder+`"`, string(nameJSON), 1)

	wk := map[string]any{}
	if err := json.Unmarshal([]byte(workflow), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/prompt",
		Method:     http.MethodPost,
		Body:       map[string]any{"prompt": wk},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}

	log.Ctx(ctx).Debug().Str("prompt_id", resp.PromptID).Int("number", resp.Number).Msg("prompt queued")
	return resp.PromptID, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

// waitOutput 轮询 history 直到工作流产出图片，ctx 取消时退出
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (*imageRef, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + "/api/history/" + url.PathEscape(promptID),
			Method:     http.MethodGet,
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("prompt %s failed", promptID)
			}
			for _, out := range entry.Outputs {
				if len(out.Images) > 0 {
					return &out.Images[0], nil
				}
			}
			if entry.Status.Completed {
				return nil, fmt.Errorf("prompt %s completed without images", promptID)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, ref *imageRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/view?" + q.Encode(),
		Method:     http.MethodGet,
		Response:   &data,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("view output: %w", err)
	}
	return data, nil
}
