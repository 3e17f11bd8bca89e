package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"resume-matcher/internal/config"
	"resume-matcher/internal/constants"
	"resume-matcher/internal/tracing"
	"resume-matcher/internal/types"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-matcher/storage/redis")

// Redis操作前缀采样率配置，redisotel 已记录每条命令，这里只对部分业务操作额外建 span
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.ProfileModulePrefix + ":": 0.05, // 画像缓存读写频繁
	constants.AppPrefix + ":" + constants.BatchModulePrefix + ":":   1.0,  // 每个批次只写一次汇总
}

var (
	rnd      = rand.New(rand.NewSource(time.Now().UnixNano()))
	rndMutex sync.Mutex
)

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置，0 使用 go-redis 默认值
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// ProfileCacheTTL 画像缓存过期时间
func (r *Redis) ProfileCacheTTL() time.Duration {
	if r.config == nil || r.config.ProfileCacheTTLHours <= 0 {
		return constants.DefaultProfileCacheTTL
	}
	return time.Duration(r.config.ProfileCacheTTLHours) * time.Hour
}

// GetProfile 按文本哈希读取缓存的画像，未命中返回 (nil, nil)
func (r *Redis) GetProfile(ctx context.Context, textHash string) (*types.ExtractedProfile, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyProfileCache, textHash))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取画像缓存失败: %w", err)
	}

	var profile types.ExtractedProfile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		return nil, fmt.Errorf("反序列化画像缓存失败: %w", err)
	}
	if profile.Skills == nil {
		profile.Skills = types.SkillSet{}
	}
	return &profile, nil
}

// PutProfile 缓存画像，过期时间取配置值
func (r *Redis) PutProfile(ctx context.Context, textHash string, profile types.ExtractedProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("序列化画像失败: %w", err)
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyProfileCache, textHash), string(data), r.ProfileCacheTTL())
}

// SaveSummary 保存批处理汇总，进程重启后仍可通过 runID 查询
func (r *Redis) SaveSummary(ctx context.Context, summary types.BatchSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("序列化批处理汇总失败: %w", err)
	}
	return r.Set(ctx, fmt.Sprintf(constants.KeyBatchSummary, summary.RunID), string(data), constants.DefaultSummaryTTL)
}

// GetSummary 读取批处理汇总，不存在时返回 ErrNotFound
func (r *Redis) GetSummary(ctx context.Context, runID string) (*types.BatchSummary, error) {
	val, err := r.Get(ctx, fmt.Sprintf(constants.KeyBatchSummary, runID))
	if err != nil {
		return nil, err
	}
	var summary types.BatchSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, fmt.Errorf("反序列化批处理汇总失败: %w", err)
	}
	return &summary, nil
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			semconv.DBSystemRedis,
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			// key不存在不算错误
			if errors.Is(err, redis.Nil) {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			}
			return "", err
		}
		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}
	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			semconv.DBSystemRedis,
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
		)
		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return err
		}
		span.SetStatus(codes.Ok, "")
	}
	return err
}
