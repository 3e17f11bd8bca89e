package processor

import (
	"context"

	"resume-matcher/internal/types"
)

//
// 流水线组件接口
//

// TextIngestor 文档摄取器接口：原始文档 -> 纯文本
type TextIngestor interface {
	// ExtractText 失败时返回 UnsupportedFormatError 或 ExtractionError
	ExtractText(ctx context.Context, doc types.Document) (string, error)
}

// AttributeExtractor 属性提取器接口。实现必须是只读的，会被多个 worker 并发调用
type AttributeExtractor interface {
	// ExtractProfile 从简历文本提取画像，不会失败
	ExtractProfile(text string) types.ExtractedProfile

	// ExtractRequirement 从岗位描述文本提取要求
	ExtractRequirement(text string) types.JobRequirement
}

// MatchScorer 评分器接口，纯函数
type MatchScorer interface {
	Score(documentName string, profile types.ExtractedProfile, req types.JobRequirement) *types.MatchResult
}

//
// 可选的协作组件
//

// ProfileCache 画像缓存，按规范化文本的哈希命中时跳过提取
type ProfileCache interface {
	// GetProfile 未命中时返回 (nil, nil)
	GetProfile(ctx context.Context, textHash string) (*types.ExtractedProfile, error)

	// PutProfile 缓存提取结果
	PutProfile(ctx context.Context, textHash string, profile types.ExtractedProfile) error
}

// EventPublisher 批处理事件发布者
type EventPublisher interface {
	// PublishProgress 发布进度事件
	PublishProgress(ctx context.Context, event types.ProgressEvent) error

	// PublishSummary 发布批处理结束时的汇总
	PublishSummary(ctx context.Context, summary types.BatchSummary) error
}

// ProgressListener 进度回调，由批处理的收集协程串行调用，不应阻塞
type ProgressListener func(event types.ProgressEvent)
