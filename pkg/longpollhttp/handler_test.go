package longpollhttp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpollhttp"
)

type message struct {
	longpoll.BaseNotification
	Text string `json:"text"`
}

// lastMessage keeps the most recent message as the full update.
type lastMessage struct {
	mu   sync.Mutex
	last *message
}

func (b *lastMessage) OnNotification(m *message, _ int64, _ bool) {
	b.mu.Lock()
	b.last = m
	b.mu.Unlock()
}

func (b *lastMessage) FullUpdate() *message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return &message{}
	}
	return b.last
}

func newChannel(t *testing.T) *longpoll.Channel[*message] {
	t.Helper()
	ch, err := longpoll.NewSequenced[*message](&lastMessage{}, longpoll.Config{Capacity: 16, MaxUpdatesToSend: 8})
	require.NoError(t, err)
	require.NoError(t, ch.Start(context.Background()))
	t.Cleanup(func() { ch.Shutdown(5 * time.Second) })
	return ch
}

func publishText(t *testing.T, ch *longpoll.Channel[*message], text string) int64 {
	t.Helper()
	seq, err := ch.Publish(context.Background(), &message{Text: text})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.AwaitAggregated(ctx, seq))
	return seq
}

// countingSource records how often a handler reads from and parks on ch.
type countingSource struct {
	*longpoll.Channel[*message]
	reads atomic.Int64
	waits atomic.Int64
}

func (s *countingSource) NotificationsSince(last int64) longpoll.Update[*message] {
	s.reads.Add(1)
	return s.Channel.NotificationsSince(last)
}

func (s *countingSource) WaitForNext(ctx context.Context, last int64) error {
	s.waits.Add(1)
	return s.Channel.WaitForNext(ctx, last)
}

func (s *countingSource) AwaitAggregated(ctx context.Context, seq int64) error {
	s.waits.Add(1)
	return s.Channel.AwaitAggregated(ctx, seq)
}

// gatedMessages keeps the last message but blocks every fold until gate closes.
type gatedMessages struct {
	lastMessage
	gate chan struct{}
}

func (b *gatedMessages) OnNotification(m *message, seq int64, endOfBatch bool) {
	<-b.gate
	b.lastMessage.OnNotification(m, seq, endOfBatch)
}

// serveFor runs h until d elapses and returns what it wrote.
func serveFor(h http.Handler, target string, d time.Duration) *httptest.ResponseRecorder {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx))
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) longpollhttp.Response[message] {
	t.Helper()
	var resp longpollhttp.Response[message]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"", longpoll.NoSequence},
		{"0", 0},
		{"42", 42},
		{"-1", longpoll.NoSequence},
		{"-17", longpoll.NoSequence},
		{"abc", longpoll.NoSequence},
		{"9223372036854775807", longpoll.NoSequence},
		{"9223372036854775806", 9223372036854775806},
		{"9223372036854775808", longpoll.NoSequence},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, longpollhttp.ParseSequence(tt.raw))
		})
	}
}

func TestHandler(t *testing.T) {
	t.Run("answers a client that is behind", func(t *testing.T) {
		ch := newChannel(t)
		publishText(t, ch, "a")
		publishText(t, ch, "b")
		h := longpollhttp.NewHandler[*message](ch)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lastSequence=0", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "1", rec.Header().Get(longpollhttp.SequenceHeader))
		resp := decodeResponse(t, rec)
		assert.Equal(t, "notifications", resp.Kind)
		assert.Equal(t, int64(1), resp.Sequence)
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, "b", resp.Notifications[0].Text)
	})

	t.Run("missing sequence means nothing received", func(t *testing.T) {
		ch := newChannel(t)
		publishText(t, ch, "a")
		h := longpollhttp.NewHandler[*message](ch)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a", decodeResponse(t, rec).Notifications[0].Text)
	})

	t.Run("times out with no content", func(t *testing.T) {
		ch := newChannel(t)
		publishText(t, ch, "a")
		h := longpollhttp.NewHandler[*message](ch, longpollhttp.WithPollTimeout(20*time.Millisecond))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lastSequence=0", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "0", rec.Header().Get(longpollhttp.SequenceHeader))
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, 0, ch.PendingWaits())
	})

	t.Run("out of range sequence parks like a new client", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewHandler[*message](ch, longpollhttp.WithPollTimeout(50*time.Millisecond))

		start := time.Now()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lastSequence="+strconv.FormatInt(math.MaxInt64, 10), nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, "-1", rec.Header().Get(longpollhttp.SequenceHeader))
	})

	t.Run("parked request returns the next notification", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewHandler[*message](ch)

		rec := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			defer close(done)
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		}()

		require.Eventually(t, func() bool { return ch.PendingWaits() == 1 }, time.Second, 5*time.Millisecond)
		publishText(t, ch, "hello")

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handler did not return")
		}
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", decodeResponse(t, rec).Notifications[0].Text)
	})

	t.Run("shutdown releases parked requests", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewHandler[*message](ch)

		rec := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			defer close(done)
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		}()

		require.Eventually(t, func() bool { return ch.PendingWaits() == 1 }, time.Second, 5*time.Millisecond)
		require.True(t, ch.Shutdown(time.Second))

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handler did not return")
		}
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "cancelled")
	})
}

func TestPublishHandler(t *testing.T) {
	t.Run("publishes the decoded body", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewPublishHandler[*message](ch)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`)))

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp longpollhttp.PublishResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(0), resp.Sequence)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, ch.AwaitAggregated(ctx, 0))
		assert.Equal(t, "hi", ch.NotificationsSince(longpoll.NoSequence).Values[0].Text)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewPublishHandler[*message](ch)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, longpoll.NoSequence, ch.Published())
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		ch := newChannel(t)
		h := longpollhttp.NewPublishHandler[*message](ch, longpollhttp.WithMaxBodySize(8))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"far too long"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("unavailable after shutdown", func(t *testing.T) {
		ch := newChannel(t)
		require.True(t, ch.Shutdown(time.Second))
		h := longpollhttp.NewPublishHandler[*message](ch)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRouter(t *testing.T) {
	ch := newChannel(t)
	srv := httptest.NewServer(longpollhttp.Router[*message](ch, longpollhttp.WithPollTimeout(time.Second)))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(`{"text":"first"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return ch.Cursor() == 0 }, time.Second, 5*time.Millisecond)

	resp, err = http.Get(srv.URL + "/?lastSequence=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body longpollhttp.Response[message]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "first", body.Notifications[0].Text)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStreamHandler(t *testing.T) {
	ch := newChannel(t)
	publishText(t, ch, "first")

	srv := httptest.NewServer(longpollhttp.Router[*message](ch, longpollhttp.WithSignalName("feed")))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	waitFor := func(substr string) {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended before %q", substr)
				if strings.Contains(line, substr) {
					return
				}
			case <-ctx.Done():
				t.Fatalf("no event containing %q", substr)
			}
		}
	}

	waitFor(`"feed":{"kind":"notifications","sequence":0`)
	publishText(t, ch, "second")
	waitFor(`"text":"second"`)

	cancel()
}

func TestStreamHandler_Parks(t *testing.T) {
	t.Run("out of range sequence does not spin", func(t *testing.T) {
		src := &countingSource{Channel: newChannel(t)}
		h := longpollhttp.NewStreamHandler[*message](src)

		serveFor(h, "/stream?lastSequence="+strconv.FormatInt(math.MaxInt64, 10), 100*time.Millisecond)

		assert.Equal(t, int64(1), src.reads.Load())
		assert.Equal(t, int64(1), src.waits.Load())
	})

	t.Run("waits for a lagging aggregator instead of resending", func(t *testing.T) {
		gate := make(chan struct{})
		ch, err := longpoll.NewSequenced[*message](&gatedMessages{gate: gate},
			longpoll.Config{Capacity: 4, MaxUpdatesToSend: 1}, longpoll.WithPublishedVisibility())
		require.NoError(t, err)
		require.NoError(t, ch.Start(context.Background()))
		t.Cleanup(func() { ch.Shutdown(5 * time.Second) })

		for _, text := range []string{"a", "b", "c"} {
			_, err := ch.Publish(context.Background(), &message{Text: text})
			require.NoError(t, err)
		}

		src := &countingSource{Channel: ch}
		h := longpollhttp.NewStreamHandler[*message](src, longpollhttp.WithSignalName("feed"))
		rec := serveFor(h, "/stream", 100*time.Millisecond)

		assert.Equal(t, int64(1), src.reads.Load())
		assert.Equal(t, int64(1), src.waits.Load())
		assert.NotContains(t, rec.Body.String(), `"kind":"full"`)

		close(gate)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, ch.AwaitAggregated(ctx, 2))

		rec = serveFor(h, "/stream", 100*time.Millisecond)
		assert.Contains(t, rec.Body.String(), `"feed":{"kind":"full","sequence":2`)
		assert.Contains(t, rec.Body.String(), `"text":"c"`)
	})
}
