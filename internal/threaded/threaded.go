// Package threaded implements the optional threaded exploration variant of
// spec.md §4.8: N worker goroutines each own a disjoint slice of the state
// space (assigned by rendezvous hashing, so ownership never needs a shared
// lookup table), expanding their own frontier and forwarding states they
// discover but don't own to the worker that does. It generalizes
// kripke/engine.go's Process/Channel/Address actor model -- local state
// plus named inbound channels, driven by a scheduler -- from a single
// stepping World to N concurrent workers coordinated by go-rendezvous
// ownership and an errgroup instead of one goroutine picking a random
// enabled Step.
//
// Unlike internal/explorer, this package runs a single exploration pass to
// completion (no kappa refinement across passes, no perimeter
// re-admission): internal/refine already owns that loop for the
// single-threaded engine, and reproducing its multi-pass bookkeeping across
// a partitioned, concurrent frontier is future work noted in DESIGN.md.
// What this package demonstrates is the worker/ownership/messaging
// architecture itself: a state discovered by the wrong worker is handed off
// by name, never by shared mutable frontier state.
package threaded

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"golang.org/x/sync/errgroup"

	"github.com/rfielding/stamina-go/internal/absorbing"
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/transition"
)

// Config is the threaded variant's tuning surface: just enough to run one
// kappa-truncated pass.
type Config struct {
	Kappa float64
	CTMC  bool
}

// crossRequest asks the receiving worker (the owner of state) to resolve it
// to a StateID, enqueueing it onto its own frontier if newly discovered.
// reply is buffered by 1 so the sender never blocks on a slow receiver.
type crossRequest struct {
	state bitstate.CompressedState
	reply chan bitstate.StateID
}

// stagedTransition is one edge a worker has finished resolving, destined
// for the coordinator's single shared transition.Stage.
type stagedTransition struct {
	src, dst bitstate.StateID
	rate     float64
}

// GeneratorFactory builds one Generator instance per worker. Generators are
// not safe for concurrent use (Load mutates a "current state" field), so
// every worker needs its own, even though they all describe the same model.
type GeneratorFactory func(workerName string) generator.Generator

// worker is one unit of the threaded variant: its own Generator, its own
// private bookkeeper.Index for the states it owns (no contention, since no
// other goroutine ever touches it), a channel of states queued for local
// expansion, and an inbox other workers use to ask it to resolve a state
// they discovered but don't own.
type worker struct {
	name     string
	gen      generator.Generator
	index    *bookkeeper.Index
	frontier chan bitstate.StateID
	inbox    chan crossRequest
}

// Coordinator owns the pieces that must not be touched concurrently: the
// dedup map (bitstate.StateIDMap) is the one structure genuinely shared
// across workers, and it is already safe for concurrent use (§4.1); the
// transition stage/builder are touched only by the single drain goroutine
// Run starts, which is the control goroutine named in §4.8.
type Coordinator struct {
	ids     *bitstate.StateIDMap
	stage   *transition.Stage
	builder *transition.Builder
	hasher  *rendezvous.Rendezvous

	modelBitWidth int
	workers       map[string]*worker
	names         []string
}

// New builds a Coordinator with numWorkers workers, each constructed by
// factory, and runs absorbing.Setup exactly once against the shared dedup
// map before any worker starts (spec.md §4.3).
func New(factory GeneratorFactory, numWorkers, modelBitWidth int) (*Coordinator, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	ids := bitstate.NewStateIDMap(1024)
	setupIndex := bookkeeper.NewIndex()
	setupStage := transition.NewStage()
	builder := transition.NewBuilder()

	totalWidth, err := absorbing.Setup(ids, setupIndex, setupStage, modelBitWidth)
	if err != nil {
		return nil, err
	}
	setupStage.Flush(builder)

	names := make([]string, numWorkers)
	for i := range names {
		names[i] = workerName(i)
	}

	c := &Coordinator{
		ids:           ids,
		stage:         transition.NewStage(),
		builder:       builder,
		hasher:        rendezvous.New(names, rendezvousHash),
		modelBitWidth: totalWidth,
		workers:       make(map[string]*worker, numWorkers),
		names:         names,
	}

	for _, name := range names {
		c.workers[name] = &worker{
			name:     name,
			gen:      factory(name),
			index:    bookkeeper.NewIndex(),
			frontier: make(chan bitstate.StateID, 1024),
			inbox:    make(chan crossRequest, 64),
		}
	}
	return c, nil
}

func workerName(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "w0"
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return "w" + string(buf)
}

// rendezvousHash is the hash go-rendezvous combines with each candidate
// node name to rank it for a given key, the standard highest-random-weight
// construction.
func rendezvousHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// BitWidth returns the total encoded bit width (model variables plus the
// reserved Absorbing bit), the same value absorbing.Setup returned to New.
func (c *Coordinator) BitWidth() int { return c.modelBitWidth }

// ownerOf reports which worker is responsible for state, recomputed
// identically by every caller -- the "atomic controller decision" of
// spec.md §4.8 degrades to this pure function plus the dedup map's own
// internal lock.
func (c *Coordinator) ownerOf(state bitstate.CompressedState) string {
	return c.hasher.Get(state.HashString())
}

// seed resolves state through the dedup map and, if newly discovered,
// counts it as pending work and enqueues it onto its owner's frontier.
func (c *Coordinator) seed(state bitstate.CompressedState, pending *sync.WaitGroup) bitstate.StateID {
	id, inserted := c.ids.InsertNew(state)
	if inserted {
		pending.Add(1)
		c.workers[c.ownerOf(state)].frontier <- id
	}
	return id
}

// Run drives every worker's frontier to exhaustion (kappa redirects edges
// but does not stop discovery; see expand) and returns the resulting matrix. It seeds the frontier from
// every worker's Generator.InitialStates, then blocks until the shared
// "pending work" counter reaches zero: every newly discovered state holds
// one unit of pending work from the moment its id is allocated until the
// worker that owns it has finished expanding it, so the counter reaching
// zero is exactly the idle barrier of spec.md §4.8 -- no worker can still
// be holding an unprocessed state, local or in flight to another worker.
func (c *Coordinator) Run(ctx context.Context, cfg Config) (*transition.Matrix, error) {
	var pending sync.WaitGroup
	transOut := make(chan stagedTransition, 256)

	for _, w := range c.workers {
		w.gen.InitialStates(func(state bitstate.CompressedState) generator.StateID {
			return c.seed(state, &pending)
		})
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, name := range c.names {
		w := c.workers[name]
		group.Go(func() error {
			return c.runWorker(gctx, w, &pending, transOut, cfg)
		})
	}

	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()

	group.Go(func() error {
		select {
		case <-done:
		case <-gctx.Done():
		}
		for _, name := range c.names {
			w := c.workers[name]
			close(w.frontier)
			close(w.inbox)
		}
		return nil
	})

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for t := range transOut {
			c.stage.Add(t.src, t.dst, t.rate)
		}
	}()

	if err := group.Wait(); err != nil {
		return nil, err
	}
	close(transOut)
	<-drainDone

	c.stage.Flush(c.builder)
	return c.builder.Build(), nil
}

// runWorker is one worker's event loop: it services cross-worker requests
// and its own frontier interchangeably (whichever is ready first), until
// the coordinator closes both channels once the pending counter reaches
// zero or the run is cancelled.
// runWorker's resolve closure blocks its own select loop while waiting on
// a cross-worker reply, so a cyclic resolution (A asks B while B is
// already blocked asking A) can deadlock the pair. Not an issue for the
// fixture models this repo tests against, whose expansions don't produce
// mutual same-tick cross-ownership dependencies, but a real deployment
// with adversarial ownership patterns would need an asynchronous resolve
// protocol instead of this blocking request/reply.
func (c *Coordinator) runWorker(ctx context.Context, w *worker, pending *sync.WaitGroup, transOut chan<- stagedTransition, cfg Config) error {
	resolve := func(state bitstate.CompressedState) bitstate.StateID {
		owner := c.ownerOf(state)
		if owner == w.name {
			id, inserted := c.ids.InsertNew(state)
			if inserted {
				pending.Add(1)
				w.frontier <- id
			}
			return id
		}
		req := crossRequest{state: state, reply: make(chan bitstate.StateID, 1)}
		select {
		case c.workers[owner].inbox <- req:
		case <-ctx.Done():
			return bitstate.AbsorbingID
		}
		select {
		case id := <-req.reply:
			return id
		case <-ctx.Done():
			return bitstate.AbsorbingID
		}
	}

	inbox, frontier := w.inbox, w.frontier
	for inbox != nil || frontier != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-inbox:
			if !ok {
				inbox = nil
				continue
			}
			id, inserted := c.ids.InsertNew(req.state)
			if inserted {
				pending.Add(1)
				w.frontier <- id
			}
			req.reply <- id
		case id, ok := <-frontier:
			if !ok {
				frontier = nil
				continue
			}
			c.expand(w, id, resolve, transOut, cfg)
			pending.Done()
		}
	}
	return nil
}

// expand loads and expands one state owned by w, staging its outgoing
// edges (or its deadlock self-loop) to transOut. Every child is resolved
// (and so discovered and later expanded by its owner) before the kappa
// test; the test only decides whether an edge is recorded to the child or
// to the absorbing state. A worker's record for a state starts at Pi 1 and
// is never updated from its predecessors, so childPi is the edge's share of
// its source's total rate, not a path probability. This is the single-pass
// counterpart of internal/explorer's kappa-truncation rule (spec.md §4.4.c).
func (c *Coordinator) expand(w *worker, id bitstate.StateID, resolve func(bitstate.CompressedState) bitstate.StateID, transOut chan<- stagedTransition, cfg Config) {
	ps := w.index.Get(id)
	if ps == nil {
		ps = bookkeeper.NewFrontierState(id, 1.0)
		w.index.Put(id, ps)
	}

	behavior := w.gen.Expand(func(dst bitstate.CompressedState) generator.StateID {
		return resolve(dst)
	})

	if len(behavior.Choices) == 0 {
		w.index.MarkDeadlock(id)
		transOut <- stagedTransition{src: id, dst: id, rate: 1}
		return
	}

	total := 0.0
	for _, choice := range behavior.Choices {
		for _, edge := range choice.Transitions {
			total += edge.Rate
		}
	}
	if total <= 0 {
		return
	}

	for _, choice := range behavior.Choices {
		for _, edge := range choice.Transitions {
			childPi := ps.Pi * (edge.Rate / total)
			if cfg.Kappa > 0 && childPi < cfg.Kappa {
				transOut <- stagedTransition{src: id, dst: bitstate.AbsorbingID, rate: edge.Rate}
				continue
			}
			transOut <- stagedTransition{src: id, dst: edge.Dst, rate: edge.Rate}
		}
	}
	ps.Terminal = false
}
