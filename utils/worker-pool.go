package utils

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool fans jobs out over a fixed set of goroutines. Jobs carry no
// shared state; results come back unordered and callers index them
// themselves.
type WorkerPool struct {
	NumWorkers int
	JobQueue   chan interface{}
	Results    chan interface{}
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

func NewWorkerPool(numWorkers, jobBufferSize, resultBufferSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{
		NumWorkers: numWorkers,
		JobQueue:   make(chan interface{}, jobBufferSize),
		Results:    make(chan interface{}, resultBufferSize),
	}
}

// StartWorkers launches the workers with the given work function. Safe
// to call once; later calls are ignored.
func (wp *WorkerPool) StartWorkers(workFunc func(interface{}) interface{}) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}
	wp.started = true
	wp.wg.Add(wp.NumWorkers)
	for i := 0; i < wp.NumWorkers; i++ {
		go func() {
			defer wp.wg.Done()
			for job := range wp.JobQueue {
				wp.Results <- workFunc(job)
			}
		}()
	}
}

func (wp *WorkerPool) SubmitJob(job interface{}) {
	wp.JobQueue <- job
}

// ProgressTracker counts completed jobs and logs a line every hundred.
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
}

func NewProgressTracker(total int64, name string) *ProgressTracker {
	return &ProgressTracker{Total: total, StartTime: time.Now(), Name: name}
}

func (pt *ProgressTracker) Increment() {
	processed := atomic.AddInt64(&pt.Processed, 1)
	if processed%100 == 0 || processed == pt.Total {
		elapsed := time.Since(pt.StartTime)
		rate := float64(processed) / elapsed.Seconds()
		log.Printf("%s: %d/%d (%.1f%%) - %.1f items/sec",
			pt.Name, processed, pt.Total, float64(processed)/float64(pt.Total)*100, rate)
	}
}

// ParallelProcessor batches independent jobs through a worker pool. Used
// for read-only fan-outs (the geometry validity scan); the engine itself
// stays synchronous.
type ParallelProcessor struct {
	NumWorkers int
}

func NewParallelProcessor(numWorkers int) *ParallelProcessor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &ParallelProcessor{NumWorkers: numWorkers}
}

// ProcessBatch runs workFunc over every item and returns the non-nil
// results, unordered.
func (pp *ParallelProcessor) ProcessBatch(items []interface{},
	workFunc func(interface{}) interface{},
	progressName string) []interface{} {

	if len(items) == 0 {
		return nil
	}

	tracker := NewProgressTracker(int64(len(items)), progressName)
	wp := NewWorkerPool(pp.NumWorkers, len(items), len(items))
	wp.StartWorkers(func(job interface{}) interface{} {
		result := workFunc(job)
		tracker.Increment()
		return result
	})

	for _, item := range items {
		wp.SubmitJob(item)
	}
	close(wp.JobQueue)

	results := make([]interface{}, 0, len(items))
	for i := 0; i < len(items); i++ {
		if result := <-wp.Results; result != nil {
			results = append(results, result)
		}
	}
	wp.wg.Wait()
	close(wp.Results)
	return results
}
