package longpoll_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
)

// testValue is a string payload that is safe to read while it is combined into.
type testValue struct {
	mu sync.Mutex
	b  strings.Builder
}

func newValue(s string) *testValue {
	v := &testValue{}
	v.b.WriteString(s)
	return v
}

func (v *testValue) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.b.String()
}

type testManager struct{}

func (testManager) NewInstance() *testValue { return &testValue{} }

func (testManager) Combine(target, add *testValue) {
	s := add.String()
	target.mu.Lock()
	defer target.mu.Unlock()
	target.b.WriteString(s)
}

func (testManager) Set(target, value *testValue) {
	s := value.String()
	target.mu.Lock()
	defer target.mu.Unlock()
	target.b.Reset()
	target.b.WriteString(s)
}

// gatedManager blocks every Combine until gate is closed.
type gatedManager struct {
	testManager
	gate chan struct{}
}

func (m gatedManager) Combine(target, add *testValue) {
	<-m.gate
	m.testManager.Combine(target, add)
}

// panickingManager panics when asked to combine the value "boom".
type panickingManager struct {
	testManager
}

func (m panickingManager) Combine(target, add *testValue) {
	if add.String() == "boom" {
		panic("boom")
	}
	m.testManager.Combine(target, add)
}

// lockedBuffer is a bytes.Buffer that can be written by the channel's
// goroutines while the test reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(capacity int, maxUpdates int64) longpoll.Config {
	return longpoll.Config{Capacity: capacity, MaxUpdatesToSend: maxUpdates}
}

func startChannel[T any](t *testing.T, ch *longpoll.Channel[T], err error) *longpoll.Channel[T] {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, ch.Start(context.Background()))
	t.Cleanup(func() { ch.Shutdown(5 * time.Second) })
	return ch
}

func startCombining(t *testing.T, cfg longpoll.Config, opts ...longpoll.Option) *longpoll.Channel[*testValue] {
	t.Helper()
	ch, err := longpoll.NewCombining[*testValue](testManager{}, cfg, opts...)
	return startChannel(t, ch, err)
}

func publish[T any](t *testing.T, ch *longpoll.Channel[T], values ...T) int64 {
	t.Helper()
	last := longpoll.NoSequence
	for _, v := range values {
		seq, err := ch.Publish(context.Background(), v)
		require.NoError(t, err)
		last = seq
	}
	return last
}

func publishStrings(t *testing.T, ch *longpoll.Channel[*testValue], values ...string) int64 {
	t.Helper()
	vs := make([]*testValue, len(values))
	for i, s := range values {
		vs[i] = newValue(s)
	}
	return publish(t, ch, vs...)
}

func awaitAggregated[T any](t *testing.T, ch *longpoll.Channel[T], seq int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.AwaitAggregated(ctx, seq))
}

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}
