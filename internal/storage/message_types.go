package storage

import (
	"encoding/json"
	"time"
)

// 批处理事件类型
const (
	EventBatchProgress  = "batch.progress"
	EventBatchCompleted = "batch.completed"
	EventBatchCancelled = "batch.cancelled"
)

// BatchEventMessage 发布到 batch events exchange 的消息信封
type BatchEventMessage struct {
	EventID    string          `json:"event_id"`    // 消息ID，同时写入 AMQP MessageId
	EventType  string          `json:"event_type"`  // 见 Event* 常量
	RunID      string          `json:"run_id"`      // 批处理ID
	OccurredAt time.Time       `json:"occurred_at"` // 事件时间
	Payload    json.RawMessage `json:"payload"`     // ProgressEvent 或 BatchSummary
}
