package binding

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileRecord 落盘格式：players 下是 游戏ID -> 外部账号ID 的平坦映射。
type fileRecord struct {
	Players map[string]int64 `yaml:"players"`
}

// FileIO 基于单个 yaml 文件的持久化。写入先落临时文件再 rename，
// 保证任意时刻文件内容完整。
type FileIO struct {
	path string
}

func NewFileIO(path string) *FileIO {
	return &FileIO{path: path}
}

func (f *FileIO) Load() (map[string]int64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int64{}, nil
		}
		return nil, fmt.Errorf("read binding file: %w", err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse binding file: %w", err)
	}
	if rec.Players == nil {
		rec.Players = map[string]int64{}
	}
	return rec.Players, nil
}

func (f *FileIO) Save(records map[string]int64) error {
	data, err := yaml.Marshal(fileRecord{Players: records})
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create binding dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write binding file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace binding file: %w", err)
	}
	return nil
}
