package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"resume-matcher/internal/constants"
	"resume-matcher/internal/outbox"
)

var _ outbox.Store = (*Redis)(nil)

// Enqueue 写入待发送列表
func (r *Redis) Enqueue(ctx context.Context, msg outbox.Message) error {
	return r.pushOutbox(ctx, constants.KeyOutboxPending, msg)
}

// Claim 用 LPOP count 原子地取出一批消息
func (r *Redis) Claim(ctx context.Context, limit int) ([]outbox.Message, error) {
	vals, err := r.Client.LPopCount(ctx, constants.KeyOutboxPending, limit).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取发件箱失败: %w", err)
	}

	messages := make([]outbox.Message, 0, len(vals))
	for _, v := range vals {
		var msg outbox.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			// 无法解析的消息直接归档，避免反复取出
			_ = r.Client.RPush(ctx, constants.KeyOutboxFailed, v).Err()
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Fail 归档到失败列表
func (r *Redis) Fail(ctx context.Context, msg outbox.Message) error {
	return r.pushOutbox(ctx, constants.KeyOutboxFailed, msg)
}

// OutboxLen 待发送消息数
func (r *Redis) OutboxLen(ctx context.Context) (int64, error) {
	return r.Client.LLen(ctx, constants.KeyOutboxPending).Result()
}

func (r *Redis) pushOutbox(ctx context.Context, key string, msg outbox.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化发件箱消息失败: %w", err)
	}
	if err := r.Client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("写入发件箱 %s 失败: %w", key, err)
	}
	return nil
}
