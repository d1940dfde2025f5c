package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ppiankov/reportspectre/internal/models"
)

// ProcessFunc analyses one file.
type ProcessFunc func(ctx context.Context, path string) *models.AnalysisResult

// Pool manages concurrent processing of report files
type Pool struct {
	workers int
	process ProcessFunc
	jobs    chan string
	results chan *models.AnalysisResult
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool creates a new worker pool
func NewPool(workers int, process ProcessFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		process: process,
		jobs:    make(chan string, workers*2),
		results: make(chan *models.AnalysisResult, workers*2),
	}
}

// Start starts the worker pool
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker processes jobs from the job queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case path, ok := <-p.jobs:
			if !ok {
				return
			}
			p.results <- p.safeProcess(id, path)
		}
	}
}

// safeProcess turns a panic while processing one file into a not analysed
// result so the remaining files still run.
func (p *Pool) safeProcess(id int, path string) (result *models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panic recovered",
				slog.Int("worker_id", id),
				slog.String("file", path),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			result = failedResult(path, fmt.Sprintf("processing panicked: %v", r))
		}
	}()
	return p.process(p.ctx, path)
}

// Submit submits a file to the pool. It returns false once the pool is
// canceled.
func (p *Pool) Submit(path string) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- path:
		return true
	}
}

// Results returns the results channel
func (p *Pool) Results() <-chan *models.AnalysisResult {
	return p.results
}

// Stop stops the worker pool and waits for all workers to finish
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// Close jobs channel to signal workers to stop
	close(p.jobs)

	p.wg.Wait()
	close(p.results)

	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}
