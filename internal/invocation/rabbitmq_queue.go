package invocation

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "AgentWallet-Kit/internal/errors"
)

const (
	defaultRabbitQueue = "agentwallet.invocations"
	rabbitAppID        = "agentwallet"
	rabbitConsumerTag  = "agentwallet-processor"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 RabbitMQ 实现调用队列，消息体即调用 ID。
type RabbitMQQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	now   func() time.Time
}

// NewRabbitMQQueue 建立连接并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = defaultRabbitQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	q := &RabbitMQQueue{conn: conn, queue: cfg.Queue, now: time.Now}
	if err := q.setup(cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) setup(cfg RabbitMQConfig) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ 预取数量失败")
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		_ = ch.Close()
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败",
			xerrors.WithMetadata("queue", cfg.Queue))
	}
	q.ch = ch
	return nil
}

func (q *RabbitMQQueue) ready() error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	return nil
}

// Publish 以持久化消息投递调用 ID。
func (q *RabbitMQQueue) Publish(ctx context.Context, invocationID string) error {
	if err := q.ready(); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    invocationID,
		AppId:        rabbitAppID,
		Timestamp:    q.now(),
		Body:         []byte(invocationID),
	}
	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递 RabbitMQ 消息失败",
			xerrors.WithMetadata("invocation_id", invocationID))
	}
	return nil
}

// Consume 以手动确认模式消费，直到 ctx 结束或 broker 关闭投递通道。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if err := q.ready(); err != nil {
		return err
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, rabbitConsumerTag, false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	var wg sync.WaitGroup
	for range max(workerCount, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// ctx 取消后 ConsumeWithContext 会关闭 deliveries。
			for d := range deliveries {
				settle(d, handler(ctx, string(d.Body)))
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 投递通道已关闭")
}

// acknowledger 是 amqp.Delivery 的确认子集。
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle 对可重试错误重新入队，其余情况一律确认。
func settle(d acknowledger, handlerErr error) {
	if xerrors.RetryableError(handlerErr) {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil || q.conn == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	return q.conn.Close()
}
