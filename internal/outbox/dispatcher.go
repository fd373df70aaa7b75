// Package outbox 事务发件箱：中继从主库取出已提交事件，经分发器投递给下游消费者
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/internal/model"
	"github.com/LorillaJm/es6-sub000/pkg/metrics"
)

// ConsumerFunc 下游消费者：镜像投影、积分等；必须幂等
type ConsumerFunc func(ctx context.Context, evt *model.ShiftEvent) error

// ErrNotRunning 分发器已关闭
var ErrNotRunning = errors.New("事件分发器未运行")

// metadataSeq 消息元数据中的提交序号
const metadataSeq = "seq"

// Dispatcher 基于 watermill 路由的事件分发器
//
// 每个消费者是一个独立的路由处理器，订阅同一主题。
// 中间件自外向内：记录结果 → 恢复 panic → 重试。
// 重试耗尽后消息仍被确认（gochannel 对 Nack 会立即重投），失败结果交回中继，
// 由中继按退避策略在发件箱中重新排期。
type Dispatcher struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *zap.Logger

	mu       sync.Mutex
	outcomes map[string][]error
}

// NewDispatcher 创建分发器
func NewDispatcher(cfg config.OutboxConfig, logger *zap.Logger) (*Dispatcher, error) {
	wmLogger := NewLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		// 所有消费者处理完毕后 Publish 才返回
		BlockPublishUntilSubscriberAck: true,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("创建事件路由失败: %w", err)
	}

	d := &Dispatcher{
		pubsub:   pubsub,
		router:   router,
		logger:   logger,
		outcomes: make(map[string][]error),
	}

	retries := cfg.HandlerRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.HandlerRetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	router.AddMiddleware(
		d.recordOutcome,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      retries,
			InitialInterval: delay,
			MaxInterval:     10 * delay,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
	)
	return d, nil
}

// AddConsumer 注册消费者；必须在 Serve 之前调用
func (d *Dispatcher) AddConsumer(name string, fn ConsumerFunc) {
	d.router.AddConsumerHandler(name, model.TopicShiftEvents, d.pubsub, func(msg *message.Message) error {
		var evt model.ShiftEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("解析事件失败: %w", err)
		}
		if seq, err := strconv.ParseUint(msg.Metadata.Get(metadataSeq), 10, 64); err == nil {
			evt.Seq = seq
		}
		return fn(msg.Context(), &evt)
	})
}

// recordOutcome 最外层中间件：记录消费者最终失败并确认消息
func (d *Dispatcher) recordOutcome(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			consumer := message.HandlerNameFromCtx(msg.Context())
			metrics.PropagationFailures.WithLabelValues(consumer).Inc()
			d.logger.Error("事件消费失败",
				zap.String("consumer", consumer),
				zap.String("event_id", msg.UUID),
				zap.String("seq", msg.Metadata.Get(metadataSeq)),
				zap.Error(err),
			)
			d.mu.Lock()
			d.outcomes[msg.UUID] = append(d.outcomes[msg.UUID], fmt.Errorf("%s: %w", consumer, err))
			d.mu.Unlock()
		}
		return produced, nil
	}
}

// Deliver 投递一条事件并等待所有消费者处理完毕
// 返回各消费者最终失败的合并错误
func (d *Dispatcher) Deliver(ctx context.Context, evt *model.ShiftEvent) error {
	select {
	case <-d.router.Running():
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.router.IsClosed() {
		return ErrNotRunning
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := message.NewMessage(evt.EventID, payload)
	msg.Metadata.Set(metadataSeq, strconv.FormatUint(evt.Seq, 10))
	msg.Metadata.Set("type", evt.Type)

	if err := d.pubsub.Publish(model.TopicShiftEvents, msg); err != nil {
		return err
	}

	d.mu.Lock()
	errs := d.outcomes[evt.EventID]
	delete(d.outcomes, evt.EventID)
	d.mu.Unlock()
	return errors.Join(errs...)
}

// Serve 实现 suture.Service；路由只能运行一次，退出后不再重启
func (d *Dispatcher) Serve(ctx context.Context) error {
	err := d.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = ErrNotRunning
	}
	return err
}

// Running 路由就绪信号
func (d *Dispatcher) Running() chan struct{} {
	return d.router.Running()
}

// Close 关闭路由与内存通道
func (d *Dispatcher) Close() error {
	return errors.Join(d.router.Close(), d.pubsub.Close())
}

// String 供监督树日志使用
func (d *Dispatcher) String() string { return "outbox-dispatcher" }

var _ watermill.LoggerAdapter = (*zapAdapter)(nil)
