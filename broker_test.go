package uhttp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(string, ...interface{})  {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func TestBrokerSettlesOnce(t *testing.T) {
	b := newBroker(nil)

	var calls int32
	b.Then(func(Result) { atomic.AddInt32(&calls, 1) })

	assert.True(t, b.settle(Result{Data: "first"}, StateCompleted))
	assert.False(t, b.settle(Result{Data: "second"}, StateCompleted))
	assert.False(t, b.settle(Result{Err: errors.New("late")}, StateFailed))

	res, settled := b.Result()
	assert.True(t, settled)
	assert.Equal(t, "first", res.Data)
	assert.Equal(t, StateCompleted, b.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBrokerRoutesByOutcome(t *testing.T) {
	var order []string
	b := newBroker(nil).
		Then(func(Result) { order = append(order, "then") }).
		Catch(func(Result) { order = append(order, "catch") }).
		Finally(func(Result) { order = append(order, "finally") })

	b.settle(Result{Err: errors.New("failed")}, StateFailed)

	assert.Equal(t, []string{"catch", "finally"}, order)
}

func TestBrokerLateRegistrationRunsImmediately(t *testing.T) {
	b := newBroker(nil)
	b.settle(Result{Data: 1, Status: 200}, StateCompleted)

	var got Result
	var catchCalled bool
	b.Success(func(r Result) { got = r }).
		Error(func(Result) { catchCalled = true })

	assert.Equal(t, 1, got.Data)
	assert.Equal(t, 200, got.Status)
	assert.False(t, catchCalled)

	var finallyCalled bool
	b.Finally(func(Result) { finallyCalled = true })
	assert.True(t, finallyCalled)
}

func TestBrokerLateBranchRunsAfterEarlierFinally(t *testing.T) {
	b := newBroker(nil)

	var order []string
	b.Finally(func(Result) { order = append(order, "finally") })
	b.settle(Result{Data: "ok"}, StateCompleted)
	b.Then(func(Result) { order = append(order, "then") })

	assert.Equal(t, []string{"finally", "then"}, order)
}

func TestBrokerHandlerPanicDoesNotStopFinally(t *testing.T) {
	logger := &recordingLogger{}
	b := newBroker(logger)

	var secondCalled, finallyCalled bool
	b.Then(func(Result) { panic("handler failure") }).
		Then(func(Result) { secondCalled = true }).
		Finally(func(Result) { finallyCalled = true })

	b.settle(Result{Data: "ok"}, StateCompleted)

	assert.True(t, secondCalled)
	assert.True(t, finallyCalled)
	assert.Equal(t, []string{"Handler panicked"}, logger.errors)
	select {
	case <-b.Done():
	default:
		t.Fatal("Done not closed after settlement")
	}
}

func TestBrokerNilHandlerIgnored(t *testing.T) {
	b := newBroker(nil)
	assert.Same(t, b, b.Then(nil).Catch(nil).Finally(nil))
	b.settle(Result{}, StateCompleted)
}

func TestBrokerWait(t *testing.T) {
	b := newBroker(nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.settle(Result{Err: ErrTimeout}, StateTimedOut)
	}()

	res, err := b.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, res.Err, err)
}

func TestBrokerWaitContextCancelled(t *testing.T) {
	b := newBroker(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, settled := b.Result()
	assert.False(t, settled)
}

func TestBrokerStateAfterSettleIsFrozen(t *testing.T) {
	b := newBroker(nil)
	b.setState(StateDispatched)
	assert.Equal(t, StateDispatched, b.State())

	b.settle(Result{}, StateCompleted)
	b.setState(StateDispatched)
	assert.Equal(t, StateCompleted, b.State())
}

func TestBrokerConcurrentRegistration(t *testing.T) {
	b := newBroker(nil)

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Then(func(Result) { atomic.AddInt32(&calls, 1) })
		}()
	}
	go b.settle(Result{}, StateCompleted)
	wg.Wait()
	<-b.Done()

	assert.Equal(t, int32(50), atomic.LoadInt32(&calls))
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateConfigured: "configured",
		StateCacheHit:   "cache_hit",
		StateDispatched: "dispatched",
		StateCompleted:  "completed",
		StateFailed:     "failed",
		StateTimedOut:   "timed_out",
		State(99):       "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}

func TestResultDecodeFromCachedData(t *testing.T) {
	res := Result{Data: map[string]any{"id": float64(3)}, Cached: true}

	var v struct {
		ID int `json:"id"`
	}
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, 3, v.ID)
}
