package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"resume-matcher/internal/config"
	"resume-matcher/internal/constants"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/outbox"
	"resume-matcher/internal/types"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	// 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, headers amqp.Table) error

	// 确保交换机存在
	EnsureExchange(exchangeName, exchangeType string, durable bool) error

	// 确保队列存在
	EnsureQueue(queueName string, durable bool) error

	// 绑定队列到交换机
	BindQueue(queueName, exchangeName, routingKey string) error

	// 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var (
	_ MessageQueue     = (*RabbitMQ)(nil)
	_ outbox.Publisher = (*RabbitMQ)(nil)
)

// RabbitMQ 提供消息队列功能，同时作为批处理事件的发布者
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	cfg         *config.RabbitMQConfig
	logger      *zerolog.Logger

	mu          sync.Mutex
	exchangeMap map[string]bool // 记录已声明的exchange
	queueMap    map[string]bool // 记录已声明的queue
	bindingMap  map[string]bool // key格式: "exchange:queue:routingKey"

	publishMutex sync.Mutex // 保护发布操作
}

// NewRabbitMQ 创建RabbitMQ客户端并声明批处理事件交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig, l *zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}
	l = logger.OrNop(l)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		cfg:         cfg,
		logger:      l,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
	}
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				l.Error().Err(errPool).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	if err := mq.EnsureExchange(cfg.BatchEventsExchange, amqp.ExchangeTopic, true); err != nil {
		conn.Close()
		return nil, err
	}

	l.Info().Str("exchange", cfg.BatchEventsExchange).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch, _ := r.channelPool.Get().(*amqp.Channel)
	if ch == nil || ch.IsClosed() {
		newCh, err := r.conn.Channel()
		if err != nil {
			r.logger.Error().Err(err).Msg("创建新RabbitMQ通道失败")
			return nil
		}
		return newCh
	}
	return ch
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	// 防止尝试声明默认交换机
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exchangeMap[exchangeName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName, // exchange名称
		exchangeType, // exchange类型
		durable,      // 持久化
		false,        // 自动删除
		false,        // 内部专用
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	r.logger.Debug().Str("exchange", exchangeName).Str("type", exchangeType).Msg("已确保exchange存在")
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queueMap[queueName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName, // 队列名称
		durable,   // 持久化
		false,     // 自动删除
		false,     // 独占
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMap[queueName] = true
	return nil
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindingMap[bindingKey] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.bindingMap[bindingKey] = true
	r.logger.Debug().Str("queue", queueName).Str("exchange", exchangeName).Str("routing_key", routingKey).Msg("队列已绑定")
	return nil
}

// PublishMessage 发布持久化的 JSON 消息
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, headers amqp.Table) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	msgID, _ := headers["message_id"].(string)
	return ch.PublishWithContext(
		ctx,
		exchangeName, // exchange名
		routingKey,   // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  constants.ContentTypeJSON,
			MessageId:    msgID,
			Headers:      headers,
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// eventMessage 封装消息信封并按事件类型确定路由
func (r *RabbitMQ) eventMessage(eventType, routingKey, runID string, payload interface{}) (outbox.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return outbox.Message{}, fmt.Errorf("JSON序列化失败: %w", err)
	}
	envelope := BatchEventMessage{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		RunID:      runID,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return outbox.Message{}, fmt.Errorf("JSON序列化失败: %w", err)
	}
	return outbox.Message{
		ID:         envelope.EventID,
		Exchange:   r.cfg.BatchEventsExchange,
		RoutingKey: routingKey,
		Body:       data,
		Headers:    map[string]string{"message_id": envelope.EventID, "event_type": eventType, "run_id": runID},
		CreatedAt:  envelope.OccurredAt,
	}, nil
}

// Publish 发布一条已封装的消息，发件箱重试时也走这里
func (r *RabbitMQ) Publish(ctx context.Context, msg outbox.Message) error {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if err := r.PublishMessage(ctx, msg.Exchange, msg.RoutingKey, msg.Body, headers); err != nil {
		return fmt.Errorf("发布 %s 事件失败: %w", msg.Headers["event_type"], err)
	}
	return nil
}

// PublishProgress 发布进度事件
func (r *RabbitMQ) PublishProgress(ctx context.Context, event types.ProgressEvent) error {
	msg, err := r.eventMessage(EventBatchProgress, r.cfg.ProgressRoutingKey, event.RunID, event)
	if err != nil {
		return err
	}
	return r.Publish(ctx, msg)
}

// SummaryMessage 构造批处理汇总消息，完成与取消使用不同的路由键
func (r *RabbitMQ) SummaryMessage(summary types.BatchSummary) (outbox.Message, error) {
	eventType, routingKey := EventBatchCompleted, r.cfg.CompletedRoutingKey
	if summary.Status == types.BatchCancelled {
		eventType, routingKey = EventBatchCancelled, r.cfg.CancelledRoutingKey
	}
	return r.eventMessage(eventType, routingKey, summary.RunID, summary)
}

// PublishSummary 发布批处理汇总
func (r *RabbitMQ) PublishSummary(ctx context.Context, summary types.BatchSummary) error {
	msg, err := r.SummaryMessage(summary)
	if err != nil {
		return err
	}
	return r.Publish(ctx, msg)
}

// StartConsumer 启动消费者处理函数，handler 返回 false 时消息重新入队
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	// 设置QoS，控制预取数量
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName, // 队列
		"",        // 消费者标签，留空由server生成唯一标签
		false,     // 自动确认
		false,     // 独占
		false,     // 非本地
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	go func() {
		// 消费过的通道不再放回池中
		defer ch.Close()
		defer r.logger.Info().Str("queue", queueName).Msg("RabbitMQ消费者已停止")

		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				if handler(delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						r.logger.Warn().Err(err).Msg("确认消息失败")
					}
				} else if err := delivery.Nack(false, true); err != nil {
					r.logger.Warn().Err(err).Msg("拒绝消息失败")
				}
			}
		}
	}()

	return stopCh, nil
}
