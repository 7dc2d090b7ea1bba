package storage

import (
	"context"
	"fmt"

	"resume-search-go/internal/config"
	"resume-search-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储依赖
type Storage struct {
	// 关系型数据库，关键词检索的数据源
	MySQL *MySQL

	// 向量数据库
	Qdrant *Qdrant

	// 键值存储，可选，用于Redis会话历史
	Redis *Redis
}

// NewStorage 创建存储管理器。
// MySQL与Qdrant是检索核心的硬依赖，初始化失败即报错；Redis可选。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error

	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	logger.Info().Str("host", cfg.MySQL.Host).Msg("MySQL初始化成功")

	s.Qdrant, err = NewQdrant(&cfg.Qdrant)
	if err != nil {
		return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
	}
	logger.Info().Str("endpoint", cfg.Qdrant.Endpoint).Str("collection", cfg.Qdrant.Collection).Msg("Qdrant初始化成功")

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			// Redis只承载可选的会话持久化，失败降级为内存会话
			logger.Warn().Err(err).Msg("初始化Redis失败，会话历史将使用内存存储")
		} else {
			logger.Info().Str("address", cfg.Redis.Address).Msg("Redis初始化成功")
		}
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// Qdrant走HTTP短连接，无需显式关闭
}
