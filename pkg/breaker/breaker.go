package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/pkg/metrics"
)

// Config 熔断器配置
type Config struct {
	Name             string
	MaxRequests      uint32        // 半开状态允许的探测请求数
	Interval         time.Duration // 闭合状态下计数清零周期
	Timeout          time.Duration // 打开状态持续时间
	FailureThreshold uint32        // 连续失败多少次后打开
}

// Breaker 带日志与指标的熔断器
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// New 创建熔断器
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("熔断器状态变更",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}

	return &Breaker{
		cb:   gobreaker.NewCircuitBreaker[interface{}](settings),
		name: cfg.Name,
	}
}

// Do 在熔断保护下执行 fn
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State 当前状态（closed / half-open / open）
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsOpen 错误是否来自熔断拒绝（而非业务调用本身）
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
