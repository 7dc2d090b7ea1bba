package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search-go/internal/types"
)

type stubRetriever struct {
	results []types.SearchResultItem
	err     error

	mu      sync.Mutex
	queries []string
}

func (s *stubRetriever) Search(ctx context.Context, query string, searchType types.SearchType, topK int, traceID string) ([]types.SearchResultItem, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// echoChatModel 实现 model.ToolCallingChatModel，回显最后一条用户消息
type echoChatModel struct {
	err error
}

func (m *echoChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	last := messages[len(messages)-1]
	return schema.AssistantMessage("回复: "+last.Content, nil), nil
}

func (m *echoChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("echoChatModel未实现Stream")
}

func (m *echoChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func (m *echoChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func newTestManager(t *testing.T, retriever *stubRetriever, llm model.ToolCallingChatModel) *ConversationManager {
	t.Helper()
	cm, err := NewConversationManager(NewInMemoryChatMemory(0), retriever, llm, 10)
	require.NoError(t, err)
	return cm
}

func TestChatCreatesConversation(t *testing.T) {
	retriever := &stubRetriever{results: []types.SearchResultItem{
		{FileName: "a.pdf", Score: 0.8, Snippet: "golang工程师"},
	}}
	cm := newTestManager(t, retriever, &echoChatModel{})

	result, err := cm.Chat(context.Background(), "", "找一个golang工程师")
	require.NoError(t, err)

	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, 2, result.MessageCount)
	assert.Equal(t, 1, result.SearchResultsUsed)
	assert.Contains(t, result.Reply, "找一个golang工程师")
}

func TestChatTurnsAlternateStrictly(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{})
	ctx := context.Background()

	result, err := cm.Chat(ctx, "", "第一个问题")
	require.NoError(t, err)
	id := result.ConversationID

	for i := 2; i <= 3; i++ {
		result, err = cm.Chat(ctx, id, fmt.Sprintf("第%d个问题", i))
		require.NoError(t, err)
		assert.Equal(t, id, result.ConversationID)
		assert.Equal(t, i*2, result.MessageCount)
	}

	history, err := cm.GetMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, turn := range history {
		if i%2 == 0 {
			assert.Equal(t, types.ChatRoleUser, turn.Role)
		} else {
			assert.Equal(t, types.ChatRoleAssistant, turn.Role)
		}
	}
	assert.Equal(t, "第一个问题", history[0].Content)
}

func TestChatConversationIsolation(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{})
	ctx := context.Background()

	r1, err := cm.Chat(ctx, "", "会话一的问题")
	require.NoError(t, err)
	r2, err := cm.Chat(ctx, "", "会话二的问题")
	require.NoError(t, err)
	require.NotEqual(t, r1.ConversationID, r2.ConversationID)

	h1, err := cm.GetMessages(ctx, r1.ConversationID)
	require.NoError(t, err)
	require.Len(t, h1, 2)
	assert.Equal(t, "会话一的问题", h1[0].Content)
}

func TestChatEmptyMessage(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{})

	_, err := cm.Chat(context.Background(), "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatRetrievalFailurePropagates(t *testing.T) {
	retriever := &stubRetriever{err: fmt.Errorf("向量库不可用")}
	cm := newTestManager(t, retriever, &echoChatModel{})

	_, err := cm.Chat(context.Background(), "", "找人")
	assert.Error(t, err)
}

func TestChatModelFailureLeavesHistoryUntouched(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{err: fmt.Errorf("模型超时")})

	_, err := cm.Chat(context.Background(), "c1", "找人")
	require.Error(t, err)

	// 失败的轮次不落历史
	_, err = cm.GetMessages(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGetMessagesUnknownConversation(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{})

	_, err := cm.GetMessages(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDeleteConversation(t *testing.T) {
	cm := newTestManager(t, &stubRetriever{}, &echoChatModel{})
	ctx := context.Background()

	result, err := cm.Chat(ctx, "", "找人")
	require.NoError(t, err)

	existed, err := cm.DeleteConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = cm.DeleteConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestChatUsesHybridSearchPerTurn(t *testing.T) {
	retriever := &stubRetriever{}
	cm := newTestManager(t, retriever, &echoChatModel{})
	ctx := context.Background()

	result, err := cm.Chat(ctx, "", "找golang工程师")
	require.NoError(t, err)
	_, err = cm.Chat(ctx, result.ConversationID, "有没有字节跳动背景的")
	require.NoError(t, err)

	require.Len(t, retriever.queries, 2)
	assert.Equal(t, "找golang工程师", retriever.queries[0])
	assert.Equal(t, "有没有字节跳动背景的", retriever.queries[1])
}
