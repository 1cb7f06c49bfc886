// Package pool bounds the number of concurrent tile fetch+decode
// operations. A fixed set of workers drains a FIFO queue; completions
// are delivered on a channel and must be consumed by the single
// coordination goroutine, which is the only place cache state changes.
package pool

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"panoview/internal/source"
)

// ErrAborted marks a load that was cancelled on purpose, by eviction or
// shutdown. Expected during normal operation and never logged as an
// error.
var ErrAborted = errors.New("pool: load aborted")

// IsAborted reports whether err is a benign cancellation rather than a
// real fetch or decode failure.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// FetchFunc fetches and decodes one tile. It must honor ctx
// cancellation at both the network and decode stages.
type FetchFunc func(ctx context.Context, url string) (*image.RGBA, error)

// Result is one completed submission. Token echoes the value returned
// by Submit so late results for superseded requests can be recognized
// and dropped.
type Result struct {
	Key    source.Key
	Token  uuid.UUID
	Bitmap *image.RGBA
	Err    error
}

type Stats struct {
	Active    int
	Queued    int
	Completed int64
	Aborted   int64
	Failed    int64
}

type request struct {
	key    source.Key
	url    string
	token  uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

type Pool struct {
	size     int
	cooldown time.Duration
	fetch    FetchFunc
	logger   *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*request
	pending map[source.Key]*request
	closed  bool

	results chan Result

	active    atomic.Int32
	completed atomic.Int64
	aborted   atomic.Int64
	failed    atomic.Int64

	rootCtx    context.Context
	rootCancel context.CancelFunc
	group      *errgroup.Group
}

// New starts a pool of size workers. Cooldown is slept by a worker
// after each completion before it picks up the next request.
func New(size int, cooldown time.Duration, fetch FetchFunc, logger *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:       size,
		cooldown:   cooldown,
		fetch:      fetch,
		logger:     logger,
		pending:    make(map[source.Key]*request),
		results:    make(chan Result, size*16),
		rootCtx:    ctx,
		rootCancel: cancel,
		group:      &errgroup.Group{},
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Results delivers exactly one Result per accepted submission. The
// channel is closed by Shutdown.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Submit enqueues a fetch for key. If a submission for the same key is
// already queued or in flight, the existing token is returned and no
// second fetch is issued.
func (p *Pool) Submit(key source.Key, url string) (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return uuid.Nil, false
	}
	if existing, ok := p.pending[key]; ok {
		return existing.token, false
	}

	ctx, cancel := context.WithCancel(p.rootCtx)
	req := &request{
		key:    key,
		url:    url,
		token:  uuid.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	p.pending[key] = req
	p.queue = append(p.queue, req)
	p.cond.Signal()
	return req.token, true
}

// Cancel aborts the submission for key, if any. An in-flight fetch is
// interrupted; a queued one never starts. Either way the request still
// produces exactly one Result, classified as aborted.
func (p *Pool) Cancel(key source.Key) {
	p.mu.Lock()
	req, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if ok {
		req.cancel()
	}
}

// FreeSlots reports how many workers are not currently processing a
// request. Input to the load-admission policy.
func (p *Pool) FreeSlots() int {
	free := p.size - int(p.active.Load())
	if free < 0 {
		return 0
	}
	return free
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()

	active := int(p.active.Load())
	queued := pending - active
	if queued < 0 {
		queued = 0
	}
	return Stats{
		Active:    active,
		Queued:    queued,
		Completed: p.completed.Load(),
		Aborted:   p.aborted.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown cancels everything outstanding, waits for the workers to
// drain and closes the results channel. The pool is unusable afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, req := range p.pending {
		req.cancel()
	}
	p.pending = make(map[source.Key]*request)
	p.cond.Broadcast()
	p.mu.Unlock()

	p.rootCancel()
	_ = p.group.Wait()
	close(p.results)
}

func (p *Pool) worker() error {
	for {
		req := p.next()
		if req == nil {
			return nil
		}

		p.active.Inc()
		res := p.run(req)
		p.finish(req, res)
		p.active.Dec()

		if p.cooldown > 0 {
			select {
			case <-p.rootCtx.Done():
			case <-time.After(p.cooldown):
			}
		}
	}
}

// next blocks until a request is queued or the pool closes.
func (p *Pool) next() *request {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil
	}
	req := p.queue[0]
	p.queue = p.queue[1:]
	return req
}

func (p *Pool) run(req *request) Result {
	res := Result{Key: req.key, Token: req.token}

	// Cancelled while still queued: report aborted without fetching.
	if req.ctx.Err() != nil {
		res.Err = ErrAborted
		return res
	}

	bm, err := p.fetch(req.ctx, req.url)
	if err != nil {
		if IsAborted(err) || req.ctx.Err() != nil {
			res.Err = ErrAborted
		} else {
			res.Err = err
		}
		return res
	}
	res.Bitmap = bm
	return res
}

func (p *Pool) finish(req *request, res Result) {
	req.cancel()

	p.mu.Lock()
	// A cancelled request may have been superseded by a fresh
	// submission for the same key; only remove our own entry.
	if cur, ok := p.pending[req.key]; ok && cur == req {
		delete(p.pending, req.key)
	}
	p.mu.Unlock()

	switch {
	case res.Err == nil:
		p.completed.Inc()
	case IsAborted(res.Err):
		p.aborted.Inc()
		p.logger.Debug("tile load aborted", zap.String("tile", req.key.String()))
	default:
		p.failed.Inc()
		p.logger.Warn("tile load failed",
			zap.String("tile", req.key.String()),
			zap.String("url", req.url),
			zap.Error(res.Err),
		)
	}

	select {
	case p.results <- res:
	case <-p.rootCtx.Done():
		// Shutdown in progress; drop the result.
	}
}
