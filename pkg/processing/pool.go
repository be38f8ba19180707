package processing

import (
	"context"
	"sync"
	"time"

	customlog "github.com/open-teleop/joypad/pkg/log"
)

// Job is a unit of work run by a pool worker.
type Job = func(ctx context.Context) error

// Pool runs submitted jobs on a fixed set of workers behind a bounded queue.
// Submit never blocks: when the queue is full the job is dropped.
type Pool struct {
	name        string
	workerCount int
	queueSize   int
	logger      customlog.Logger
	queue       chan Job
	running     bool
	wg          sync.WaitGroup
	mu          sync.Mutex

	metricsMu sync.Mutex
	metrics   PoolMetrics
}

// PoolMetrics tracks metrics for a pool
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed_count"`
	ErrorCount        int64 `json:"error_count"`
	QueuedCount       int64 `json:"queued_count"`
	DroppedCount      int64 `json:"dropped_count"`
	LastProcessedTime int64 `json:"last_processed_time"`
	ProcessingTimeAvg int64 `json:"processing_time_avg_us"`
	ProcessingTimeMax int64 `json:"processing_time_max_us"`
	QueueLength       int   `json:"queue_length"`
	QueueCapacity     int   `json:"queue_capacity"`
}

// NewPool creates a stopped pool. Non-positive sizes are raised to 1.
func NewPool(name string, workerCount int, queueSize int, logger customlog.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
		queue:       make(chan Job, queueSize),
	}
}

// Submit queues job. It returns false when the pool is not running or the
// queue is full.
func (p *Pool) Submit(job func(ctx context.Context) error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, discarding job", p.name)
		p.countDropped()
		return false
	}

	select {
	case p.queue <- job:
		p.metricsMu.Lock()
		p.metrics.QueuedCount++
		p.metricsMu.Unlock()
		return true
	default:
		p.logger.Warnf("%s pool queue is full, discarding job", p.name)
		p.countDropped()
		return false
	}
}

func (p *Pool) countDropped() {
	p.metricsMu.Lock()
	p.metrics.DroppedCount++
	p.metricsMu.Unlock()
}

// Start starts the workers. Starting a running pool does nothing; a stopped
// pool cannot be restarted.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.queue == nil {
		return
	}

	p.running = true
	p.logger.Infof("Starting %s pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i, p.queue)
	}
}

// Stop rejects new jobs, lets the workers drain the queue and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	p.logger.Infof("Stopping %s pool", p.name)
	p.wg.Wait()
	p.logger.Infof("%s pool stopped", p.name)

	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()

	p.logMetrics()
}

func (p *Pool) worker(id int, queue <-chan Job) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for job := range queue {
		startTime := time.Now()
		err := job(context.Background())
		processingTime := time.Since(startTime).Microseconds()

		p.metricsMu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if err != nil {
			p.metrics.ErrorCount++
		}
		p.metricsMu.Unlock()

		if err != nil {
			p.logger.Debugf("%s pool worker %d job failed: %v", p.name, id, err)
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// GetMetrics returns a copy of the current metrics
func (p *Pool) GetMetrics() PoolMetrics {
	p.mu.Lock()
	queueLength := len(p.queue)
	p.mu.Unlock()

	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	m := p.metrics
	m.QueueLength = queueLength
	m.QueueCapacity = p.queueSize
	return m
}

func (p *Pool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount, metrics.DroppedCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *Pool) GetName() string {
	return p.name
}
