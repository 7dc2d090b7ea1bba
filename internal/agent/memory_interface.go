package agent

import (
	"context"
	"errors"
	"sync"

	"resume-search-go/internal/types"
)

// ErrConversationNotFound 会话不存在
var ErrConversationNotFound = errors.New("会话不存在")

// ChatMemory 会话历史的存取接口。
// 会话在首次AppendTurns时物化，之前查询该ID返回ErrConversationNotFound。
type ChatMemory interface {
	// GetHistory 按时间顺序返回会话的全部轮次
	GetHistory(ctx context.Context, conversationID string) ([]types.ChatTurn, error)
	// AppendTurns 把若干轮次追加到会话末尾，超出maxTurns时裁掉最旧的
	AppendTurns(ctx context.Context, conversationID string, turns ...types.ChatTurn) error
	// DeleteSession 删除会话，返回会话此前是否存在
	DeleteSession(ctx context.Context, conversationID string) (bool, error)
}

// InMemoryChatMemory 进程内会话存储，默认实现。重启即失忆，适合单实例部署。
type InMemoryChatMemory struct {
	mu       sync.RWMutex
	sessions map[string][]types.ChatTurn
	maxTurns int
}

// NewInMemoryChatMemory 创建进程内会话存储。maxTurns<=0表示不限制历史长度。
func NewInMemoryChatMemory(maxTurns int) *InMemoryChatMemory {
	return &InMemoryChatMemory{
		sessions: make(map[string][]types.ChatTurn),
		maxTurns: maxTurns,
	}
}

// GetHistory 实现 ChatMemory 接口，返回历史的副本
func (m *InMemoryChatMemory) GetHistory(ctx context.Context, conversationID string) ([]types.ChatTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns, ok := m.sessions[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	out := make([]types.ChatTurn, len(turns))
	copy(out, turns)
	return out, nil
}

// AppendTurns 实现 ChatMemory 接口
func (m *InMemoryChatMemory) AppendTurns(ctx context.Context, conversationID string, turns ...types.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.sessions[conversationID], turns...)
	if m.maxTurns > 0 && len(history) > m.maxTurns {
		history = history[len(history)-m.maxTurns:]
	}
	m.sessions[conversationID] = history
	return nil
}

// DeleteSession 实现 ChatMemory 接口
func (m *InMemoryChatMemory) DeleteSession(ctx context.Context, conversationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[conversationID]
	delete(m.sessions, conversationID)
	return ok, nil
}
