package uhttp

import (
	"context"
	"encoding/json"
	"sync"
)

// State is the lifecycle position of a request.
type State int

const (
	StateConfigured State = iota
	StateCacheHit
	StateDispatched
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateCacheHit:
		return "cache_hit"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the settled outcome of a request. Err is nil on the success branch.
type Result struct {
	Data     any
	Status   int
	Response *Response
	Err      error
	Cached   bool
}

// Decode unmarshals the response into v. Cached results are re-encoded from Data.
func (r Result) Decode(v any) error {
	if r.Response != nil && r.Response.BodyText != "" {
		return json.Unmarshal([]byte(r.Response.BodyText), v)
	}
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Handler receives a settled Result.
type Handler func(Result)

// Broker delivers the outcome of one request. It settles exactly once;
// handlers registered after settlement run immediately with the buffered
// outcome. Every registration method returns the broker for chaining.
type Broker struct {
	mu      sync.Mutex
	state   State
	settled bool
	result  Result
	success []Handler
	failure []Handler
	finally []Handler
	done    chan struct{}
	logger  Logger
}

func newBroker(logger Logger) *Broker {
	if logger == nil {
		logger = NopLogger()
	}
	return &Broker{
		state:  StateConfigured,
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Then registers a success handler.
func (b *Broker) Then(h Handler) *Broker {
	return b.register(&b.success, h, branchSuccess)
}

// Success is an alias of Then.
func (b *Broker) Success(h Handler) *Broker {
	return b.Then(h)
}

// Catch registers an error handler.
func (b *Broker) Catch(h Handler) *Broker {
	return b.register(&b.failure, h, branchFailure)
}

// Error is an alias of Catch.
func (b *Broker) Error(h Handler) *Broker {
	return b.Catch(h)
}

// Finally registers a handler that runs after the success or error
// handlers, even if one of them panicked. Ordering holds among handlers
// registered before settlement only: a Then or Catch added after the broker
// has settled runs inline at registration, after any Finally handlers that
// already ran.
func (b *Broker) Finally(h Handler) *Broker {
	return b.register(&b.finally, h, branchAny)
}

// Done is closed once the broker has settled and the handlers registered
// before settlement have run.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the broker settles or ctx ends.
func (b *Broker) Wait(ctx context.Context) (Result, error) {
	select {
	case <-b.done:
		b.mu.Lock()
		res := b.result
		b.mu.Unlock()
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome and whether the broker has settled.
func (b *Broker) Result() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result, b.settled
}

// State returns the current lifecycle state.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type branch int

const (
	branchSuccess branch = iota
	branchFailure
	branchAny
)

func (b *Broker) register(list *[]Handler, h Handler, br branch) *Broker {
	if h == nil {
		return b
	}

	b.mu.Lock()
	if !b.settled {
		*list = append(*list, h)
		b.mu.Unlock()
		return b
	}
	res := b.result
	b.mu.Unlock()

	ok := res.Err == nil
	if br == branchAny || (br == branchSuccess && ok) || (br == branchFailure && !ok) {
		b.invoke(h, res)
	}
	return b
}

func (b *Broker) setState(s State) {
	b.mu.Lock()
	if !b.settled {
		b.state = s
	}
	b.mu.Unlock()
}

// settle records the outcome and runs the handlers. It reports false when
// the broker had already settled, in which case nothing happens.
func (b *Broker) settle(res Result, final State) bool {
	b.mu.Lock()
	if b.settled {
		b.mu.Unlock()
		return false
	}
	b.settled = true
	b.state = final
	b.result = res

	handlers := b.success
	if res.Err != nil {
		handlers = b.failure
	}
	finally := b.finally
	b.success, b.failure, b.finally = nil, nil, nil
	b.mu.Unlock()

	for _, h := range handlers {
		b.invoke(h, res)
	}
	for _, h := range finally {
		b.invoke(h, res)
	}
	close(b.done)
	return true
}

func (b *Broker) invoke(h Handler, res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked", "panic", r)
		}
	}()
	h(res)
}
