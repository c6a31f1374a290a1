package systems

import (
	"math/rand"
	"runtime"
	"sync"
)

// parallelThreshold is the minimum row count to fan out to workers.
// Below this, running inline is faster than the channel round trip.
const parallelThreshold = 16

// Worker is the per-goroutine state handed to parallel callbacks.
// Rng must never be shared with another worker.
type Worker struct {
	ID  int
	Rng *rand.Rand
}

// workChunk is a half-open range [lo, hi) for one worker.
type workChunk struct {
	lo, hi int
	fn     func(lo, hi int, w *Worker)
	done   *sync.WaitGroup
}

// Pool runs fork-join range work on persistent goroutines.
// A Pool is driven by one goroutine at a time and callbacks must not
// call back into the same Pool.
type Pool struct {
	workers    []Worker
	numWorkers int

	workChan chan workChunk // sends work to workers
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

// NewPool creates a pool with the given worker count (0 = GOMAXPROCS).
// Worker i seeds its generator with seed+i.
func NewPool(workers int, seed int64) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers:    make([]Worker, workers),
		numWorkers: workers,
	}
	for i := range p.workers {
		p.workers[i] = Worker{ID: i, Rng: rand.New(rand.NewSource(seed + int64(i)))}
	}
	return p
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.numWorkers }

// start launches persistent worker goroutines.
func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Close stops the workers and waits for them to exit.
func (p *Pool) Close() {
	if p == nil || !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	p.running = false
}

// worker processes chunks until stopped.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	w := &p.workers[id]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.lo, chunk.hi, w)
			chunk.done.Done()
		}
	}
}

// Range splits [0, n) into one contiguous chunk per worker and blocks
// until all chunks are done.
func (p *Pool) Range(n int, fn func(lo, hi int, w *Worker)) {
	if n <= 0 {
		return
	}
	if n < parallelThreshold || p.numWorkers == 1 {
		fn(0, n, &p.workers[0])
		return
	}
	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	p.dispatch(n, chunkSize, fn)
}

func (p *Pool) dispatch(n, chunkSize int, fn func(lo, hi int, w *Worker)) {
	p.start()

	var done sync.WaitGroup
	for lo := 0; lo < n; lo += chunkSize {
		hi := min(lo+chunkSize, n)
		done.Add(1)
		p.workChan <- workChunk{lo: lo, hi: hi, fn: fn, done: &done}
	}
	done.Wait()
}

// For2D calls fn for every cell, rows split across workers.
func (p *Pool) For2D(w, h int, fn func(x, y, i int, wk *Worker)) {
	p.Range(h, func(y0, y1 int, wk *Worker) {
		for y := y0; y < y1; y++ {
			i := y * w
			for x := 0; x < w; x++ {
				fn(x, y, i, wk)
				i++
			}
		}
	})
}

// ForIndex calls fn for every index in [0, n).
func (p *Pool) ForIndex(n int, fn func(i int, wk *Worker)) {
	p.Range(n, func(lo, hi int, wk *Worker) {
		for i := lo; i < hi; i++ {
			fn(i, wk)
		}
	})
}

// For2DBatched hands out fixed blocks of batch rows. Rows left over
// after the last full block run inline once the blocks finish.
func (p *Pool) For2DBatched(w, h, batch int, fn func(x, y, i int, wk *Worker)) {
	if batch <= 0 {
		batch = 1
	}
	full := (h / batch) * batch
	rows := func(y0, y1 int, wk *Worker) {
		for y := y0; y < y1; y++ {
			i := y * w
			for x := 0; x < w; x++ {
				fn(x, y, i, wk)
				i++
			}
		}
	}
	if full > 0 {
		if p.numWorkers == 1 || full/batch < 2 {
			rows(0, full, &p.workers[0])
		} else {
			p.dispatch(full, batch, rows)
		}
	}
	rows(full, h, &p.workers[0])
}

// For2DSingle visits every cell in row-major order on the calling goroutine.
func For2DSingle(w, h int, fn func(x, y, i int)) {
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fn(x, y, i)
			i++
		}
	}
}
