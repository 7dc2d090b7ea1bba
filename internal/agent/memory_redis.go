package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/types"
)

// RedisChatMemory 基于Redis List的会话存储，多实例部署时共享历史。
// 每个会话一个List，元素是JSON序列化的轮次。
type RedisChatMemory struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewRedisChatMemory 创建Redis会话存储。
// maxTurns<=0表示不限制历史长度，ttl<=0表示会话永不过期。
func NewRedisChatMemory(client *redis.Client, maxTurns int, ttl time.Duration) (*RedisChatMemory, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端不能为空")
	}
	return &RedisChatMemory{
		client:   client,
		maxTurns: maxTurns,
		ttl:      ttl,
	}, nil
}

func (m *RedisChatMemory) sessionKey(conversationID string) string {
	return constants.ChatMemoryKeyPrefix + conversationID
}

// GetHistory 实现 ChatMemory 接口
func (m *RedisChatMemory) GetHistory(ctx context.Context, conversationID string) ([]types.ChatTurn, error) {
	key := m.sessionKey(conversationID)

	raw, err := m.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrConversationNotFound
	}

	turns := make([]types.ChatTurn, 0, len(raw))
	for _, entry := range raw {
		var turn types.ChatTurn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			// 单条损坏跳过，不让整个会话不可读
			logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("会话历史中有损坏的轮次，已跳过")
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// AppendTurns 实现 ChatMemory 接口。RPush、裁剪和续期放在一个pipeline里。
func (m *RedisChatMemory) AppendTurns(ctx context.Context, conversationID string, turns ...types.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	key := m.sessionKey(conversationID)
	payloads := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("序列化会话轮次失败: %w", err)
		}
		payloads = append(payloads, data)
	}

	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, payloads...)
	if m.maxTurns > 0 {
		pipe.LTrim(ctx, key, -int64(m.maxTurns), -1)
	}
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// DeleteSession 实现 ChatMemory 接口
func (m *RedisChatMemory) DeleteSession(ctx context.Context, conversationID string) (bool, error) {
	deleted, err := m.client.Del(ctx, m.sessionKey(conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("删除会话失败: %w", err)
	}
	return deleted > 0, nil
}
