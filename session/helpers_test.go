package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chaos-io/cutout/matting"
)

// fakeProcessor 输出由原始字节和配置决定；特殊内容模拟各种失败
type fakeProcessor struct {
	calls map[string]int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{calls: make(map[string]int)}
}

func (f *fakeProcessor) Process(ctx context.Context, raw []byte, settings matting.Settings) ([]byte, error) {
	f.calls[string(raw)]++
	switch {
	case strings.HasPrefix(string(raw), "corrupt"):
		return nil, fmt.Errorf("%w: unknown format", matting.ErrDecode)
	case strings.HasPrefix(string(raw), "model-fail"):
		return nil, fmt.Errorf("%w: onnx runtime error", matting.ErrRemove)
	case strings.HasPrefix(string(raw), "panic"):
		panic("segfault in model")
	}
	out := fmt.Sprintf("%s|%s", raw, settings.Mode)
	if settings.Mode == matting.ModeHardEdge {
		out += fmt.Sprintf("|t=%d|s=%d", settings.Threshold, settings.Shrink)
	}
	return []byte(out), nil
}

func (f *fakeProcessor) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func ids(pass *Pass) []string {
	out := make([]string, 0, len(pass.Panels))
	for _, p := range pass.Panels {
		out = append(out, p.ID)
	}
	return out
}

func manifestNames(pass *Pass) []string {
	out := make([]string, 0, len(pass.Manifest))
	for _, e := range pass.Manifest {
		out = append(out, e.Name)
	}
	return out
}

func deleteItem(ctx context.Context, s *Session, id string) error {
	_, err := s.Dispatch(ctx, id, ActionDelete)
	return err
}

func download(s *Session, id string) (string, []byte, error) {
	p, err := s.Dispatch(context.Background(), id, ActionDownload)
	return p.OutputName, p.Output, err
}
