package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/retry"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// StageFunc runs one link of a chain. It receives the previous link's output.
type StageFunc func(ctx context.Context, in models.StageRef) (models.StageRef, error)

// WorkUnit is one link of a chain with its own retry budget.
type WorkUnit struct {
	Name     string
	Run      StageFunc
	Attempts int
	Backoff  time.Duration
}

// ChainSpec describes a sequence of work units and the input of the first one.
// OnFailure runs once, after the failing link has exhausted its attempts.
type ChainSpec struct {
	JobID     string
	Input     models.StageRef
	Units     []WorkUnit
	OnFailure func(ctx context.Context, unit string, err error)
}

type ChainState string

const (
	ChainPending   ChainState = "pending"
	ChainRunning   ChainState = "running"
	ChainSucceeded ChainState = "succeeded"
	ChainFailed    ChainState = "failed"
)

func (s ChainState) Terminal() bool {
	return s == ChainSucceeded || s == ChainFailed
}

// LinkStatus is the outcome of a single work unit.
type LinkStatus struct {
	Name     string     `json:"name"`
	State    ChainState `json:"state"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error,omitempty"`
}

// ChainStatus is the aggregate status a client polls by chain id.
type ChainStatus struct {
	ID        string          `json:"chain_id"`
	JobID     string          `json:"job_id"`
	State     ChainState      `json:"state"`
	Current   string          `json:"current,omitempty"`
	Links     []LinkStatus    `json:"links"`
	Output    models.StageRef `json:"output"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChainHandle identifies a dispatched chain.
type ChainHandle struct {
	ID   string
	done <-chan struct{}
}

// Done is closed when the chain reaches a terminal state.
func (h ChainHandle) Done() <-chan struct{} {
	return h.done
}

type chain struct {
	spec   ChainSpec
	status ChainStatus
	done   chan struct{}
}

// Orchestrator runs chains of work units on a shared queue. Each link runs
// only after its predecessor succeeded, and a failed link aborts the chain.
type Orchestrator struct {
	queue *Queue
	log   *zap.Logger
	now   func() time.Time

	mu     sync.RWMutex
	chains map[string]*chain
}

func NewOrchestrator(queue *Queue, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		queue:  queue,
		log:    logging.OrNop(log),
		now:    time.Now,
		chains: make(map[string]*chain),
	}
}

// Start launches n stage workers on the underlying queue.
func (o *Orchestrator) Start(ctx context.Context, n int) {
	o.queue.Start(ctx, n)
}

// Chain registers spec and dispatches its first link.
func (o *Orchestrator) Chain(ctx context.Context, spec ChainSpec) (ChainHandle, error) {
	if len(spec.Units) == 0 {
		return ChainHandle{}, core.Invalid("units", "chain needs at least one work unit")
	}
	for i, u := range spec.Units {
		if u.Run == nil {
			return ChainHandle{}, core.Invalid("units", "unit %d has no function", i)
		}
		if u.Name == "" {
			spec.Units[i].Name = fmt.Sprintf("unit-%d", i)
		}
	}

	now := o.now()
	c := &chain{
		spec: spec,
		done: make(chan struct{}),
		status: ChainStatus{
			ID:        uuid.NewString(),
			JobID:     spec.JobID,
			State:     ChainPending,
			Links:     make([]LinkStatus, len(spec.Units)),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for i, u := range spec.Units {
		c.status.Links[i] = LinkStatus{Name: u.Name, State: ChainPending}
	}

	o.mu.Lock()
	o.chains[c.status.ID] = c
	o.mu.Unlock()

	if err := o.queue.Enqueue(ctx, o.link(c, 0, spec.Input)); err != nil {
		o.finish(c, -1, fmt.Errorf("dispatch: %w", err))
		return ChainHandle{}, err
	}
	o.log.Debug("chain dispatched",
		zap.String("chain_id", c.status.ID),
		zap.String("job_id", spec.JobID),
		zap.Int("units", len(spec.Units)),
	)
	return ChainHandle{ID: c.status.ID, done: c.done}, nil
}

// Status returns a copy of the chain's aggregate status.
func (o *Orchestrator) Status(chainID string) (ChainStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.chains[chainID]
	if !ok {
		return ChainStatus{}, fmt.Errorf("chain %s: %w", chainID, core.ErrNotFound)
	}
	st := c.status
	st.Links = append([]LinkStatus(nil), c.status.Links...)
	return st, nil
}

// Prune forgets terminal chains last updated before cutoff.
func (o *Orchestrator) Prune(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, c := range o.chains {
		if c.status.State.Terminal() && c.status.UpdatedAt.Before(cutoff) {
			delete(o.chains, id)
			n++
		}
	}
	return n
}

func (o *Orchestrator) link(c *chain, idx int, in models.StageRef) Task {
	return func(ctx context.Context) {
		unit := c.spec.Units[idx]
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("stage panicked",
					zap.String("chain_id", c.status.ID),
					zap.String("stage", unit.Name),
					zap.Any("panic", r),
				)
				o.abort(ctx, c, idx, core.Permanent(fmt.Errorf("stage %s panicked: %v", unit.Name, r)))
			}
		}()
		o.update(c, func(st *ChainStatus) {
			st.State = ChainRunning
			st.Current = unit.Name
			st.Links[idx].State = ChainRunning
		})

		log := o.log.With(
			zap.String("chain_id", c.status.ID),
			zap.String("job_id", c.spec.JobID),
			zap.String("stage", unit.Name),
		)

		attempts := 0
		var out models.StageRef
		err := retry.Do(ctx, o.policy(unit), func(ctx context.Context) error {
			attempts++
			o.update(c, func(st *ChainStatus) { st.Links[idx].Attempts = attempts })
			var err error
			out, err = unit.Run(ctx, in)
			if err != nil {
				log.Warn("stage attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			}
			return err
		})
		if err != nil {
			log.Error("stage failed", zap.Error(err))
			o.abort(ctx, c, idx, err)
			return
		}

		o.update(c, func(st *ChainStatus) {
			st.Links[idx].State = ChainSucceeded
			st.Output = out
		})
		log.Info("stage completed", zap.Int("attempts", attempts))

		if idx+1 == len(c.spec.Units) {
			o.finish(c, -1, nil)
			return
		}
		o.handoff(ctx, c, idx+1, out)
	}
}

// handoff dispatches the next link. A full queue must not park the worker
// that is trying to feed it, so the blocking send moves to its own goroutine.
func (o *Orchestrator) handoff(ctx context.Context, c *chain, idx int, in models.StageRef) {
	next := o.link(c, idx, in)
	if o.queue.TryEnqueue(next) {
		return
	}
	go func() {
		if err := o.queue.Enqueue(ctx, next); err != nil {
			o.abort(ctx, c, idx, fmt.Errorf("dispatch: %w", err))
		}
	}()
}

// abort runs the failure callback and then marks the chain failed, so a
// closed Done channel means the callback has returned.
func (o *Orchestrator) abort(ctx context.Context, c *chain, idx int, err error) {
	if c.spec.OnFailure != nil {
		c.spec.OnFailure(context.WithoutCancel(ctx), c.spec.Units[idx].Name, err)
	}
	o.finish(c, idx, err)
}

func (o *Orchestrator) policy(u WorkUnit) retry.Policy {
	attempts := u.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.Exponential(attempts, u.Backoff)
}

func (o *Orchestrator) update(c *chain, fn func(st *ChainStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&c.status)
	c.status.UpdatedAt = o.now()
}

// finish marks the chain terminal. idx is the failed link, or -1 on success
// or when the failure is not tied to a link.
func (o *Orchestrator) finish(c *chain, idx int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c.status.State.Terminal() {
		return
	}
	c.status.Current = ""
	c.status.UpdatedAt = o.now()
	if err == nil {
		c.status.State = ChainSucceeded
	} else {
		c.status.State = ChainFailed
		c.status.Error = err.Error()
		if idx >= 0 {
			c.status.Links[idx].State = ChainFailed
			c.status.Links[idx].Error = err.Error()
		}
	}
	close(c.done)
}
