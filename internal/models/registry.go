// Package models lazily loads model adapters once per process and warms
// them up on demand.
package models

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"multimodal-rag/internal/domain"
)

// Registered model names.
const (
	Embeddings = "embeddings"
	CLIP       = "clip"
	BLIP       = "blip"
	OCR        = "ocr"
	LLaVA      = "llava"
	Completion = "llm"
)

// DefaultWarmupWorkers bounds concurrent loads during Warmup.
const DefaultWarmupWorkers = 4

// DefaultLoadTimeout bounds one shared load, retries included.
const DefaultLoadTimeout = 5 * time.Minute

// State is the lifecycle state of one model slot.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LoadFunc constructs a model adapter.
type LoadFunc func(ctx context.Context) (any, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy controls load retries with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Factor   float64
}

// DefaultRetryPolicy makes three attempts, waiting 1s then 2s between them.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Initial: time.Second, Factor: 2}

type slot struct {
	load  LoadFunc
	state State
	value any
	err   error
}

// Registry holds one slot per model name. Concurrent loads of the same
// model share a single attempt sequence.
type Registry struct {
	policy  RetryPolicy
	sleep   Sleeper
	workers int
	timeout time.Duration
	log     logrus.FieldLogger

	group singleflight.Group
	mu    sync.Mutex
	slots map[string]*slot
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Registry) {
		if p.Attempts > 0 {
			r.policy = p
		}
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Registry) { r.sleep = s }
}

// WithWarmupWorkers bounds Warmup parallelism.
func WithWarmupWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		policy:  DefaultRetryPolicy,
		sleep:   sleepCtx,
		workers: DefaultWarmupWorkers,
		timeout: DefaultLoadTimeout,
		log:     logrus.StandardLogger(),
		slots:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the loader for name. The slot starts Unloaded.
func (r *Registry) Register(name string, load LoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[name] = &slot{load: load}
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.slots))
	for n := range r.slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// State returns the current state of name, or Unloaded if unknown.
func (r *Registry) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[name]; ok {
		return s.state
	}
	return Unloaded
}

// Status reports readiness for every registered model.
func (r *Registry) Status() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.slots))
	for n, s := range r.slots {
		out[n] = s.state == Ready
	}
	return out
}

// Load returns the adapter for name, loading it on first use. A Failed
// model is retried on the next call. The load is shared by concurrent
// callers and runs detached from ctx, so one caller giving up neither
// aborts it nor fails the others; ctx only bounds how long this caller
// waits.
func (r *Registry) Load(ctx context.Context, name string) (any, error) {
	r.mu.Lock()
	s, ok := r.slots[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotRegistered, name)
	}
	if s.state == Ready {
		v := s.value
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	ch := r.group.DoChan(name, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.loadSlot(lctx, name, s)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) loadSlot(ctx context.Context, name string, s *slot) (any, error) {
	r.mu.Lock()
	if s.state == Ready {
		v := s.value
		r.mu.Unlock()
		return v, nil
	}
	s.state = Loading
	r.mu.Unlock()

	log := r.log.WithField("model", name)
	start := time.Now()
	v, attempts, err := r.attempt(ctx, log, s.load)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		s.state, s.err = Failed, err
		log.WithError(err).Error("model load failed")
		return nil, &domain.ModelLoadError{Model: name, Attempts: attempts, Err: err}
	}
	s.state, s.value, s.err = Ready, v, nil
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("model ready")
	return v, nil
}

func (r *Registry) attempt(ctx context.Context, log logrus.FieldLogger, load LoadFunc) (any, int, error) {
	delay := r.policy.Initial
	var err error
	for i := 1; i <= r.policy.Attempts; i++ {
		var v any
		v, err = load(ctx)
		if err == nil {
			return v, i, nil
		}
		if i == r.policy.Attempts {
			return nil, i, err
		}
		log.WithError(err).WithField("attempt", i).Warn("model load attempt failed, retrying")
		if serr := r.sleep(ctx, delay); serr != nil {
			return nil, i, serr
		}
		delay = time.Duration(float64(delay) * r.policy.Factor)
	}
	return nil, r.policy.Attempts, err
}

// Warmup loads every model that is not Ready with bounded parallelism and
// returns the resulting readiness map. Load failures are reported in the
// map, never as an error.
func (r *Registry) Warmup(ctx context.Context) map[string]bool {
	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, name := range r.Names() {
		if r.State(name) == Ready {
			continue
		}
		name := name
		g.Go(func() error {
			_, _ = r.Load(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	return r.Status()
}

// Get loads name and asserts it to T.
func Get[T any](ctx context.Context, r *Registry, name string) (T, error) {
	var zero T
	v, err := r.Load(ctx, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("model %s has type %T, want %s", name, v, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}

// Constructor adapts a typed builder into a LoadFunc. The built adapter is
// pinged when it implements domain.Pinger, so a load only succeeds against
// a reachable endpoint.
func Constructor[T any](build func() (T, error)) LoadFunc {
	return func(ctx context.Context) (any, error) {
		v, err := build()
		if err != nil {
			return nil, err
		}
		if p, ok := any(v).(domain.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
