package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"resume-search-go/internal/types"
)

// ScoredResume 向量检索得到的简历及其相似度
type ScoredResume struct {
	Record types.ResumeRecord
	Score  float64
}

// ResumeVectorStore 组合Embedder与向量数据库，提供文本查询到打分简历的检索
type ResumeVectorStore struct {
	embedder embedding.Embedder
	vectorDB VectorDatabase
}

// NewResumeVectorStore 创建向量检索封装
func NewResumeVectorStore(embedder embedding.Embedder, vectorDB VectorDatabase) (*ResumeVectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder不能为空")
	}
	if vectorDB == nil {
		return nil, fmt.Errorf("vectorDB不能为空")
	}
	return &ResumeVectorStore{embedder: embedder, vectorDB: vectorDB}, nil
}

// SearchWithScores 把查询文本向量化后在索引中检索，保持索引返回的相似度降序
func (s *ResumeVectorStore) SearchWithScores(ctx context.Context, query string, topK int) ([]ScoredResume, error) {
	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedder返回空向量")
	}

	hits, err := s.vectorDB.SearchSimilarResumes(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("向量索引检索失败: %w", err)
	}

	results := make([]ScoredResume, 0, len(hits))
	for _, hit := range hits {
		results = append(results, ScoredResume{
			Record: recordFromPayload(hit.Payload),
			Score:  float64(hit.Score),
		})
	}
	return results, nil
}

// recordFromPayload 从Qdrant payload还原简历记录
func recordFromPayload(payload map[string]interface{}) types.ResumeRecord {
	rec := types.ResumeRecord{
		FileName:    payloadString(payload, "file_name"),
		Email:       payloadString(payload, "email"),
		PhoneNumber: payloadString(payload, "phone_number"),
		FullContent: payloadString(payload, "content"),
	}
	if ts := payloadString(payload, "processed_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.ProcessedAt = t
		}
	}
	return rec
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
