package ringbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_Run(t *testing.T) {
	t.Run("processes values in order and exits on alert", func(t *testing.T) {
		alerter := NewAlerter()
		r, err := New[string](4, alerter)
		require.NoError(t, err)

		var got []string
		var batchEnds int
		p := NewBatchProcessor(r, HandlerFunc[string](func(value string, _ int64, endOfBatch bool) {
			got = append(got, value)
			if endOfBatch {
				batchEnds++
			}
		}))
		r.SetGatingSequences(p.Sequence())

		done := make(chan error, 1)
		go func() { done <- p.Run(context.Background()) }()

		for _, v := range []string{"a", "b", "c", "d", "e", "f"} {
			seq, err := r.Next(context.Background())
			require.NoError(t, err)
			r.Publish(seq, v)
		}

		_, err = NewBarrier(alerter, p.Sequence()).WaitFor(context.Background(), 5)
		require.NoError(t, err)

		alerter.Alert()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrAlerted)
		case <-time.After(time.Second):
			t.Fatal("processor did not stop")
		}

		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
		assert.GreaterOrEqual(t, batchEnds, 1)
		assert.Equal(t, int64(5), p.Sequence().Get())
	})

	t.Run("panic handler keeps the processor going", func(t *testing.T) {
		alerter := NewAlerter()
		r, err := New[int](4, alerter)
		require.NoError(t, err)

		panicked := make(chan int64, 1)
		p := NewBatchProcessor(r, HandlerFunc[int](func(value int, _ int64, _ bool) {
			if value == 1 {
				panic("boom")
			}
		}), WithPanicHandler(func(seq int64, recovered any) {
			assert.Equal(t, "boom", recovered)
			panicked <- seq
		}))
		r.SetGatingSequences(p.Sequence())
		go func() { _ = p.Run(context.Background()) }()
		defer alerter.Alert()

		for i := range 3 {
			seq, err := r.Next(context.Background())
			require.NoError(t, err)
			r.Publish(seq, i)
		}

		_, err = NewBarrier(alerter, p.Sequence()).WaitFor(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), <-panicked)
	})

	t.Run("second run is rejected", func(t *testing.T) {
		alerter := NewAlerter()
		r, err := New[int](2, alerter)
		require.NoError(t, err)
		p := NewBatchProcessor(r, HandlerFunc[int](func(int, int64, bool) {}))

		done := make(chan error, 1)
		go func() { done <- p.Run(context.Background()) }()
		require.Eventually(t, p.running.Load, time.Second, time.Millisecond)

		assert.Error(t, p.Run(context.Background()))
		alerter.Alert()
		assert.ErrorIs(t, <-done, ErrAlerted)
	})
}
