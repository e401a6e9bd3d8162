package lesson

import (
	"context"
	"sync"
)

type sessionKey struct {
	userID   int64
	courseID int64
}

// Manager 管理多个课程的 Sequencer 实例
// 每个 (用户, 课程) 维护独立的学习流程
type Manager struct {
	deps      Deps
	opts      []Option
	sequences map[sessionKey]*Sequencer
	mu        sync.RWMutex
}

// NewManager 创建新的学习流程管理器
func NewManager(deps Deps, opts ...Option) *Manager {
	return &Manager{
		deps:      deps,
		opts:      opts,
		sequences: make(map[sessionKey]*Sequencer),
	}
}

// Get 获取已打开的学习流程
func (m *Manager) Get(userID, courseID int64) (*Sequencer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sequences[sessionKey{userID, courseID}]
	return s, ok
}

// Open 获取学习流程，不存在时打开新的实例
// 打开过程中进度加载失败时，返回可用实例和非致命错误
func (m *Manager) Open(ctx context.Context, userID, courseID int64) (*Sequencer, error) {
	if s, ok := m.Get(userID, courseID); ok {
		return s, nil
	}

	s, err := Open(ctx, m.deps, courseID, userID, m.opts...)
	if s == nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 双重检查，防止并发打开
	key := sessionKey{userID, courseID}
	if existing, ok := m.sequences[key]; ok {
		s.Close()
		return existing, nil
	}
	m.sequences[key] = s
	return s, err
}

// Remove 关闭并移除学习流程
func (m *Manager) Remove(userID, courseID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey{userID, courseID}
	if s, ok := m.sequences[key]; ok {
		s.Close()
		delete(m.sequences, key)
	}
}

// RemoveUser 关闭并移除某用户的全部学习流程（登出时调用）
func (m *Manager) RemoveUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, s := range m.sequences {
		if key.userID == userID {
			s.Close()
			delete(m.sequences, key)
		}
	}
}

// Close 关闭所有学习流程
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, s := range m.sequences {
		s.Close()
		delete(m.sequences, key)
	}
}

// Count 当前打开的学习流程数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sequences)
}
