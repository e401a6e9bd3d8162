// Package storage 提供客户端持久化键值存储
// 相当于浏览器端的 localStorage：会话凭证等少量状态以键值形式保存，
// 进程重启后依然可读。
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"devschool-client/internal/logger"
)

// Storage 键值存储接口
type Storage interface {
	// Get 读取键值，键不存在时 ok 为 false
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	// Remove 删除键，键不存在时不报错
	Remove(key string) error
}

// FileStorage 基于 JSON 文件的存储实现
// 使用文件存储和 sync.Mutex 确保并发安全
type FileStorage struct {
	filePath string
	mu       sync.Mutex
	logger   *logger.Logger
}

// document 存储文件结构
type document struct {
	Version   string            `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Items     map[string]string `json:"items"`
}

// NewFileStorage 创建文件存储
// 参数:
//
//	filePath: 存储文件路径 (例如 "~/.devschool/session.json")
//	loggerInstance: 日志记录器实例
func NewFileStorage(filePath string, loggerInstance *logger.Logger) *FileStorage {
	if loggerInstance == nil {
		loggerInstance = logger.NewLogger(logger.INFO)
	}
	return &FileStorage{
		filePath: filePath,
		logger:   loggerInstance,
	}
}

// Path 返回存储文件路径
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// Get 读取键值
func (fs *FileStorage) Get(key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.readFile()
	if err != nil {
		return "", false, err
	}
	value, ok := doc.Items[key]
	return value, ok, nil
}

// Set 写入键值
func (fs *FileStorage) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.readFile()
	if err != nil {
		return err
	}
	doc.Items[key] = value
	doc.UpdatedAt = time.Now()

	if err := fs.writeFile(doc); err != nil {
		return err
	}
	fs.logger.Debug("存储写入成功: key=%s", key)
	return nil
}

// Remove 删除键值
func (fs *FileStorage) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	doc, err := fs.readFile()
	if err != nil {
		return err
	}
	if _, exists := doc.Items[key]; !exists {
		fs.logger.Debug("存储删除: 键不存在，key=%s", key)
		return nil
	}
	delete(doc.Items, key)
	doc.UpdatedAt = time.Now()

	if err := fs.writeFile(doc); err != nil {
		return err
	}
	fs.logger.Debug("存储删除成功: key=%s", key)
	return nil
}

// Writable 检查存储文件所在目录是否可写
func (fs *FileStorage) Writable() error {
	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("创建存储目录失败: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("存储目录不可写: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// readFile 读取存储文件内容
// 如果文件不存在，返回空的存储结构
func (fs *FileStorage) readFile() (*document, error) {
	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		return newDocument(), nil
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return nil, fmt.Errorf("读取存储文件失败: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		fs.logger.Warn("存储文件格式错误，将重新初始化: %v", err)
		return newDocument(), nil
	}
	if doc.Items == nil {
		doc.Items = make(map[string]string)
	}
	return &doc, nil
}

// writeFile 写入存储文件内容
// 先写临时文件再重命名，避免进程中断留下半截文件
func (fs *FileStorage) writeFile(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化存储数据失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0o700); err != nil {
		return fmt.Errorf("创建存储目录失败: %w", err)
	}
	// 临时文件名唯一，多个进程同时写同一文件时不会互相覆盖
	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), "."+filepath.Base(fs.filePath)+"-*")
	if err != nil {
		return fmt.Errorf("写入存储文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入存储文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入存储文件失败: %w", err)
	}
	if err := os.Rename(tmpName, fs.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入存储文件失败: %w", err)
	}
	return nil
}

func newDocument() *document {
	return &document{
		Version:   "1.0",
		UpdatedAt: time.Now(),
		Items:     make(map[string]string),
	}
}

// MemoryStorage 内存存储实现，用于测试和无需持久化的场景
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (ms *MemoryStorage) Get(key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	value, ok := ms.items[key]
	return value, ok, nil
}

func (ms *MemoryStorage) Set(key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.items[key] = value
	return nil
}

func (ms *MemoryStorage) Remove(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.items, key)
	return nil
}
