package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// snapshotFile 目录快照文件格式
//
//	people:
//	  - handle: alice
//	    email: alice@example.com
//	    name: Alice
//	    org_id: org-1
//	    schedule: { work_days: [1,2,3,4,5], start: "09:00", end: "18:00", timezone: Asia/Shanghai }
type snapshotFile struct {
	People []Snapshot `yaml:"people"`
}

// FileDirectory 从 YAML 快照文件加载的静态目录
type FileDirectory struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	people map[string]Snapshot
}

// NewFileDirectory 加载快照文件
func NewFileDirectory(path string, logger *zap.Logger) (*FileDirectory, error) {
	d := &FileDirectory{path: path, logger: logger}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload 重新读取快照文件
func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("读取目录快照失败: %w", err)
	}
	people, err := parseSnapshot(data)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.people = people
	d.mu.Unlock()

	d.logger.Info("目录快照已加载", zap.String("path", d.path), zap.Int("count", len(people)))
	return nil
}

// LookupPerson 按标识查找（不区分大小写）
func (d *FileDirectory) LookupPerson(_ context.Context, handle string) (*Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap, ok := d.people[normalizeHandle(handle)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func parseSnapshot(data []byte) (map[string]Snapshot, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析目录快照失败: %w", err)
	}

	people := make(map[string]Snapshot, len(file.People))
	for i, p := range file.People {
		key := normalizeHandle(p.Handle)
		if key == "" {
			return nil, fmt.Errorf("目录快照第 %d 项缺少 handle", i+1)
		}
		if _, dup := people[key]; dup {
			return nil, fmt.Errorf("目录快照中 handle %q 重复", p.Handle)
		}
		people[key] = p
	}
	return people, nil
}
