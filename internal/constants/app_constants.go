package constants

import "time"

const (
	// DefaultProfileCacheTTL 画像缓存默认过期时间
	DefaultProfileCacheTTL = 24 * time.Hour
	// DefaultSummaryTTL 批处理汇总在 Redis 中的保留时间
	DefaultSummaryTTL = 7 * 24 * time.Hour

	// ContentTypeJSON 消息体类型
	ContentTypeJSON = "application/json"
)
