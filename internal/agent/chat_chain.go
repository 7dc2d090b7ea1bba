package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	gofrsuuid "github.com/gofrs/uuid/v5"
	googleuuid "github.com/google/uuid"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/types"
)

// ErrEmptyMessage 用户消息为空
var ErrEmptyMessage = errors.New("消息不能为空")

// Retriever 会话链依赖的检索能力，由检索管线实现
type Retriever interface {
	Search(ctx context.Context, query string, searchType types.SearchType, topK int, traceID string) ([]types.SearchResultItem, error)
}

// ChatResult 一轮对话的结果
type ChatResult struct {
	Reply             string
	ConversationID    string
	MessageCount      int
	SearchResultsUsed int
}

// ConversationManager 多轮对话管理器：每轮先做混合检索，
// 把检索结果和会话历史一起交给大模型生成回复。
// 同一会话内的轮次被互斥锁串行化，保证历史严格按 用户/助手 交替追加。
type ConversationManager struct {
	memory    ChatMemory
	retriever Retriever
	llmModel  model.ToolCallingChatModel

	defaultTopK int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewConversationManager 创建对话管理器。defaultTopK<=0时使用默认候选数。
func NewConversationManager(memory ChatMemory, retriever Retriever, llmModel model.ToolCallingChatModel, defaultTopK int) (*ConversationManager, error) {
	if memory == nil {
		return nil, fmt.Errorf("会话存储不能为空")
	}
	if retriever == nil {
		return nil, fmt.Errorf("检索管线不能为空")
	}
	if llmModel == nil {
		return nil, fmt.Errorf("聊天模型不能为空")
	}
	if defaultTopK <= 0 {
		defaultTopK = constants.DefaultChatTopK
	}
	return &ConversationManager{
		memory:      memory,
		retriever:   retriever,
		llmModel:    llmModel,
		defaultTopK: defaultTopK,
		locks:       make(map[string]*sync.Mutex),
	}, nil
}

// lockFor 返回会话级互斥锁，按需创建
func (cm *ConversationManager) lockFor(conversationID string) *sync.Mutex {
	cm.locksMu.Lock()
	defer cm.locksMu.Unlock()

	lock, ok := cm.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		cm.locks[conversationID] = lock
	}
	return lock
}

// Chat 处理一轮对话。conversationID为空时新建会话并返回生成的ID；
// 传入未知ID时视为从该ID开始新会话。
func (cm *ConversationManager) Chat(ctx context.Context, conversationID string, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if conversationID == "" {
		conversationID = googleuuid.NewString()
	}

	lock := cm.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	traceID := gofrsuuid.Must(gofrsuuid.NewV4()).String()
	start := time.Now()

	searchResults, err := cm.retriever.Search(ctx, message, types.SearchTypeHybrid, cm.defaultTopK, traceID)
	if err != nil {
		return nil, fmt.Errorf("对话检索失败: %w", err)
	}

	history, err := cm.memory.GetHistory(ctx, conversationID)
	if err != nil && !errors.Is(err, ErrConversationNotFound) {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}

	messages := buildChatMessages(message, searchResults, history)
	resp, err := cm.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("生成回复失败: %w", err)
	}

	now := time.Now()
	err = cm.memory.AppendTurns(ctx, conversationID,
		types.ChatTurn{Role: types.ChatRoleUser, Content: message, Timestamp: now},
		types.ChatTurn{Role: types.ChatRoleAssistant, Content: resp.Content, Timestamp: now},
	)
	if err != nil {
		return nil, fmt.Errorf("保存会话历史失败: %w", err)
	}

	logger.Info().
		Str("trace_id", traceID).
		Str("conversation_id", conversationID).
		Int("search_results", len(searchResults)).
		Int("history_turns", len(history)).
		Dur("duration", time.Since(start)).
		Msg("对话轮次完成")

	return &ChatResult{
		Reply:             resp.Content,
		ConversationID:    conversationID,
		MessageCount:      len(history) + 2,
		SearchResultsUsed: len(searchResults),
	}, nil
}

// GetMessages 返回会话的全部历史，会话不存在时返回ErrConversationNotFound
func (cm *ConversationManager) GetMessages(ctx context.Context, conversationID string) ([]types.ChatTurn, error) {
	return cm.memory.GetHistory(ctx, conversationID)
}

// DeleteConversation 删除会话，返回会话此前是否存在
func (cm *ConversationManager) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	existed, err := cm.memory.DeleteSession(ctx, conversationID)
	if err != nil {
		return false, err
	}

	// 锁表里的条目随会话一起清掉，避免无限增长
	cm.locksMu.Lock()
	delete(cm.locks, conversationID)
	cm.locksMu.Unlock()
	return existed, nil
}

// buildChatMessages 组装发给模型的消息序列：系统提示（含检索上下文）+ 历史 + 当前消息
func buildChatMessages(message string, searchResults []types.SearchResultItem, history []types.ChatTurn) []*schema.Message {
	var sb strings.Builder
	sb.WriteString("你是一个简历检索助手，根据检索到的简历回答用户关于候选人的问题。\n")
	sb.WriteString("只依据下面提供的简历内容回答，不要编造简历中没有的信息。\n\n")

	if len(searchResults) == 0 {
		sb.WriteString("本轮没有检索到相关简历。\n")
	} else {
		sb.WriteString("本轮检索到的简历：\n")
		for i, item := range searchResults {
			sb.WriteString(fmt.Sprintf("%d. %s (相关度 %.2f)\n", i+1, item.FileName, item.Score))
			if item.Snippet != "" {
				sb.WriteString(item.Snippet + "\n")
			}
		}
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(sb.String()))
	for _, turn := range history {
		switch turn.Role {
		case types.ChatRoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}
	messages = append(messages, schema.UserMessage(message))
	return messages
}
