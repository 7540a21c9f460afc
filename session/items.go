package session

import (
	"fmt"
	"path"
	"strings"
)

const outputSuffix = "_no_bg.png"

var allowedExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
}

// Item 一张上传的图片。ID 在会话内唯一，重名文件按上传顺序加 " (n)" 区分
type Item struct {
	ID   string
	Name string
	Raw  []byte
}

// Items 上传源：按上传顺序保存原始字节，删除只影响可见性，不会从这里移除
type Items struct {
	order   []*Item
	byID    map[string]*Item
	outputs map[string]string // output name -> id
}

func newItems() *Items {
	return &Items{
		byID:    make(map[string]*Item),
		outputs: make(map[string]string),
	}
}

func (s *Items) Add(name string, raw []byte) (*Item, error) {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(path.Ext(name))
	if !allowedExt[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, name)
	}

	id := s.uniqueID(name)
	it := &Item{ID: id, Name: name, Raw: raw}
	s.order = append(s.order, it)
	s.byID[id] = it
	s.outputs[OutputName(id)] = id
	return it, nil
}

// uniqueID 保证 ID 和下载文件名都不冲突（a.png 与 a.jpg 的输出同为 a_no_bg.png）
func (s *Items) uniqueID(name string) string {
	if !s.taken(name) {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !s.taken(candidate) {
			return candidate
		}
	}
}

func (s *Items) taken(id string) bool {
	if _, ok := s.byID[id]; ok {
		return true
	}
	_, ok := s.outputs[OutputName(id)]
	return ok
}

func (s *Items) Get(id string) (*Item, bool) {
	it, ok := s.byID[id]
	return it, ok
}

func (s *Items) Len() int {
	return len(s.order)
}

// Newest 最新上传的在前，跳过 hidden 返回 true 的条目
func (s *Items) Newest(hidden func(id string) bool) []*Item {
	out := make([]*Item, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if it := s.order[i]; !hidden(it.ID) {
			out = append(out, it)
		}
	}
	return out
}

// OutputName a.photo.jpg → a.photo_no_bg.png，没有扩展名时整体作为 stem
func OutputName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	return name + outputSuffix
}
