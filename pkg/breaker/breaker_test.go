package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{Name: "test-open", FailureThreshold: 2, Timeout: time.Minute}, zap.NewNop())
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.ErrorIs(t, b.Do(func() error { return boom }), boom)

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.True(t, IsOpen(err), "连续失败后应打开熔断器")
	assert.False(t, called, "熔断打开时不应调用下游")
	assert.Equal(t, "open", b.State())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(Config{Name: "test-reset", FailureThreshold: 2, Timeout: time.Minute}, zap.NewNop())
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	assert.NoError(t, b.Do(func() error { return nil }))
	_ = b.Do(func() error { return boom })

	assert.Equal(t, "closed", b.State())
	assert.False(t, IsOpen(boom))
}
