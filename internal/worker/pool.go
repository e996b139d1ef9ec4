package worker

import (
	"context"
	"image"
	"sync"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrPoolExhausted is returned once every engine has died and none could be restarted.
var ErrPoolExhausted = errors.New("no python engines left")

// Detector is what a Pool hands out; *PythonWorker implements it.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]landmarks.Set, error)
	Close()
}

// Pool shares a fixed set of engines between concurrent callers.
// Each Detect call borrows one idle engine for its duration. An engine that dies
// or is killed mid-request is closed and replaced before it goes back to the pool.
type Pool struct {
	idle    chan Detector
	empty   chan struct{}
	restart func(id int) (Detector, error)
	log     *zap.Logger

	mu      sync.Mutex
	engines []Detector
	live    int
}

// NewPool starts n Python engines. If any fails to start, the ones already running are closed.
// Replacements for dead engines are started with the same ctx and cfg.
func NewPool(ctx context.Context, n int, cfg Config, log *zap.Logger) (*Pool, error) {
	engines := make([]Detector, 0, n)
	for i := 0; i < n; i++ {
		w, err := NewPythonWorker(ctx, i, cfg)
		if err != nil {
			for _, e := range engines {
				e.Close()
			}
			return nil, err
		}
		engines = append(engines, w)
	}
	p := NewPoolFrom(engines...)
	p.restart = func(id int) (Detector, error) {
		return NewPythonWorker(ctx, id, cfg)
	}
	if log != nil {
		p.log = log
	}
	return p, nil
}

// NewPoolFrom wraps already running engines. Engines that die are dropped, not restarted.
func NewPoolFrom(engines ...Detector) *Pool {
	p := &Pool{
		idle:    make(chan Detector, len(engines)),
		empty:   make(chan struct{}),
		log:     zap.NewNop(),
		engines: engines,
		live:    len(engines),
	}
	for _, e := range engines {
		p.idle <- e
	}
	if p.live == 0 {
		close(p.empty)
	}
	return p
}

// Size is the number of live engines.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Detect blocks until an engine is idle or ctx ends.
func (p *Pool) Detect(ctx context.Context, img image.Image) ([]landmarks.Set, error) {
	var e Detector
	select {
	case e = <-p.idle:
	case <-p.empty:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	faces, err := e.Detect(ctx, img)
	if broken(err) {
		p.replace(e)
		return nil, err
	}
	p.idle <- e
	return faces, err
}

// broken reports whether err left the engine unusable. A worker interrupted by
// ctx has been killed, so it counts too.
func broken(err error) bool {
	return errors.Is(err, ErrWorkerDied) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// replace closes a dead engine and puts a fresh one in its slot, or drops the slot
// when no replacement can be started.
func (p *Pool) replace(dead Detector) {
	dead.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	id := -1
	for i, e := range p.engines {
		if e == dead {
			id = i
			break
		}
	}
	if id < 0 {
		return
	}

	if p.restart != nil {
		fresh, err := p.restart(id)
		if err == nil {
			p.log.Warn("restarted python engine", zap.Int("engine", id))
			p.engines[id] = fresh
			p.idle <- fresh
			return
		}
		p.log.Error("failed to restart python engine", zap.Int("engine", id), zap.Error(err))
	}

	p.engines[id] = nil
	p.live--
	if p.live == 0 {
		close(p.empty)
	}
}

// Close stops every engine.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.engines {
		if e != nil {
			e.Close()
		}
	}
}
