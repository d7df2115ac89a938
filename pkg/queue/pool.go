package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brant/roofpipeline/pkg/config"
)

// Processor is whatever the pool hands each fetched Delivery to; the
// orchestrator package implements this.
type Processor interface {
	ProcessDelivery(ctx context.Context, d Delivery)
}

// Pool is a bounded set of worker goroutines pulling from one Consumer and
// processing jobs through a Processor (the Pipeline Orchestrator).
type Pool struct {
	consumer  *Consumer
	processor Processor
	cfg       *config.QueueConfig
	log       *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool builds a worker pool of cfg.WorkerCount goroutines.
func NewPool(consumer *Consumer, processor Processor, cfg *config.QueueConfig, log *slog.Logger) *Pool {
	return &Pool{consumer: consumer, processor: processor, cfg: cfg, log: log}
}

// Start launches the worker goroutines. Call Stop to drain gracefully.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.PollInterval+jitter(p.cfg.PollIntervalJitter))
		deliveries, err := p.consumer.Fetch(fetchCtx, 1)
		cancel()
		if err != nil {
			p.log.Error("fetch failed", "worker", id, "error", err)
			continue
		}
		for _, d := range deliveries {
			p.processor.ProcessDelivery(ctx, d)
		}
	}
}

// Stop cancels the workers and waits up to GracefulShutdownTimeout for
// in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.log.Warn("graceful shutdown timed out, some jobs may still be in flight")
	}
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % int64(max))
}
