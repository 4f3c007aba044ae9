package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/baharkarakas/pixelmart/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newPool(attempts int) *Pool {
	return NewPool(Options{
		Workers:  2,
		Attempts: attempts,
		Delay:    time.Millisecond,
		Logger:   logger.Discard(),
	})
}

func TestPoolRunsAllTasks(t *testing.T) {
	p := newPool(1)
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		assert.True(t, p.Submit("count", func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	p.Stop()
	assert.Equal(t, int32(50), n.Load())
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	p := newPool(3)
	var calls atomic.Int32
	p.Submit("flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	p.Stop()
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolDoesNotRetryFatal(t *testing.T) {
	p := newPool(5)
	var calls atomic.Int32
	p.Submit("fatal", func(context.Context) error {
		calls.Add(1)
		return errors.NotValidf("bad input")
	})
	p.Stop()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitAfterStop(t *testing.T) {
	p := newPool(1)
	p.Stop()
	p.Stop()
	assert.False(t, p.Submit("late", func(context.Context) error { return nil }))
}
