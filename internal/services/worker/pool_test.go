package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllTasksBeforeStop(t *testing.T) {
	p := NewPool(3, 50)

	var ran atomic.Int32
	for range 20 {
		ok := p.Submit(Task{Name: "count", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
		assert.True(t, ok)
	}
	p.Stop()

	assert.EqualValues(t, 20, ran.Load())
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	block := Task{Name: "block", Run: func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}}

	dropped := metrics.WorkerTasksDropped.WithLabelValues("block", "full")
	before := testutil.ToFloat64(dropped)

	assert.True(t, p.Submit(block))
	<-started
	assert.True(t, p.Submit(block), "buffer slot is free")
	assert.False(t, p.Submit(block), "buffer is full")
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))

	close(release)
	p.Stop()

	stopped := metrics.WorkerTasksDropped.WithLabelValues("block", "stopped")
	before = testutil.ToFloat64(stopped)
	assert.False(t, p.Submit(block))
	assert.Equal(t, before+1, testutil.ToFloat64(stopped))
}

func TestPoolSurvivesFailingTasks(t *testing.T) {
	p := NewPool(1, 4)

	var ran atomic.Int32
	p.Submit(Task{Name: "err", Run: func(context.Context) error { return errors.New("boom") }})
	p.Submit(Task{Name: "panic", Run: func(context.Context) error { panic("boom") }})
	p.Submit(Task{Name: "ok", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	p.Stop()

	assert.EqualValues(t, 1, ran.Load())
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(1, 1)
	p.Stop()
	p.Stop()

	assert.False(t, p.Submit(Task{Name: "late", Run: func(context.Context) error { return nil }}))
}
