package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultTaskTimeout = 10 * time.Second

// Task is one unit of background work.
type Task struct {
	Name      string
	RequestID string
	Run       func(ctx context.Context) error
}

// Pool runs tasks on a fixed number of goroutines. Submissions never block:
// when the buffer is full the task is dropped and counted.
type Pool struct {
	tasks       chan Task
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
	taskTimeout time.Duration
}

// NewPool starts size workers reading from a queue of bufferSize tasks.
func NewPool(size, bufferSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	p := &Pool{
		tasks:       make(chan Task, bufferSize),
		taskTimeout: defaultTaskTimeout,
	}

	for range size {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit queues task. It reports false when the task was dropped.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		fiberlog.Warnf("[%s] Worker pool stopped, cannot submit %s task", task.RequestID, task.Name)
		metrics.WorkerTasksDropped.WithLabelValues(task.Name, "stopped").Inc()
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		fiberlog.Warnf("[%s] Worker buffer full, dropping %s task", task.RequestID, task.Name)
		metrics.WorkerTasksDropped.WithLabelValues(task.Name, "full").Inc()
		return false
	}
}

func (p *Pool) run() {
	defer p.wg.Done()

	for task := range p.tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			fiberlog.Errorf("[%s] %s task panicked: %v", task.RequestID, task.Name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		fiberlog.Errorf("[%s] %s task failed: %v", task.RequestID, task.Name, err)
	}
}

// Stop rejects new tasks, drains the queue and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
