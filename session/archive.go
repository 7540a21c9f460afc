package session

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

const ArchiveName = "batch_cutout_v5.zip"

type Entry struct {
	Name string
	Data []byte
}

// Manifest 当前可见且已处理的条目，每次渲染重新生成
type Manifest []Entry

// WriteArchive 每个条目一个 PNG 文件，内容与缓存完全一致
func WriteArchive(w io.Writer, m Manifest) error {
	zw := zip.NewWriter(w)
	for _, e := range m {
		f, err := zw.Create(e.Name)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", e.Name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("write entry %s: %w", e.Name, err)
		}
	}
	return zw.Close()
}

func (m Manifest) Archive() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteArchive(buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
