package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logward/logward"
	"github.com/logward/logward/internal/clock"
)

type captureServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	payloads []Payload
	headers  []http.Header
	status   int
	block    chan struct{}
}

func newCaptureServer(t *testing.T) *captureServer {
	cs := &captureServer{status: http.StatusNoContent}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)

		var payload Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		cs.mu.Lock()
		block := cs.block
		cs.mu.Unlock()
		if block != nil {
			<-block
		}

		cs.mu.Lock()
		cs.payloads = append(cs.payloads, payload)
		cs.headers = append(cs.headers, r.Header.Clone())
		status := cs.status
		cs.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *captureServer) setStatus(code int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = code
}

func (cs *captureServer) requests() []Payload {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Payload, len(cs.payloads))
	copy(out, cs.payloads)
	return out
}

// lines flattens the captured payloads into message strings in arrival
// order.
func (cs *captureServer) lines() []string {
	var out []string
	for _, p := range cs.requests() {
		for _, s := range p.Streams {
			for _, v := range s.Values {
				out = append(out, v[1])
			}
		}
	}
	return out
}

func entry(msg string) logward.Entry {
	return logward.Entry{Message: msg, Level: logward.InfoLevel, Time: time.Now()}
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTransport_FlushBySize(t *testing.T) {
	cs := newCaptureServer(t)
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 2})
	require.NoError(t, err)

	tr.Log(entry("A"))
	tr.Log(entry("B"))

	require.Eventually(t, func() bool {
		return len(cs.requests()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"A", "B"}, cs.lines())
	assert.Equal(t, 0, tr.QueueLen())
	assert.Equal(t, int64(1), tr.Stats().BatchesSent)
}

func TestTransport_FlushByLinger(t *testing.T) {
	cs := newCaptureServer(t)
	fake := clock.NewFake()
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 10, BatchWait: 100 * time.Millisecond, Clock: fake})
	require.NoError(t, err)

	tr.Log(entry("A"))
	assert.Empty(t, cs.requests())

	fake.Advance(150 * time.Millisecond)

	require.Eventually(t, func() bool {
		return len(cs.requests()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"A"}, cs.lines())
}

func TestTransport_BatchOrdering(t *testing.T) {
	cs := newCaptureServer(t)
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 3})
	require.NoError(t, err)

	for _, m := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		tr.Log(entry(m))
	}

	require.Eventually(t, func() bool {
		return len(cs.lines()) == 6
	}, time.Second, 10*time.Millisecond)

	reqs := cs.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6"}, cs.lines())
}

func TestTransport_Headers(t *testing.T) {
	cs := newCaptureServer(t)
	tr, err := New(Config{
		URL:       cs.srv.URL,
		BatchSize: 1,
		Username:  "user",
		Password:  "pass",
		TenantID:  "team-a",
	})
	require.NoError(t, err)

	tr.Log(entry("A"))

	require.Eventually(t, func() bool {
		return len(cs.requests()) == 1
	}, time.Second, 10*time.Millisecond)

	cs.mu.Lock()
	h := cs.headers[0]
	cs.mu.Unlock()
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "team-a", h.Get("X-Scope-OrgID"))
	assert.Equal(t, "Basic dXNlcjpwYXNz", h.Get("Authorization"))
}

func TestTransport_RetryThenSuccess(t *testing.T) {
	cs := newCaptureServer(t)
	cs.setStatus(http.StatusInternalServerError)
	fake := clock.NewFake()
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 1, RetryBaseDelay: time.Second, Clock: fake})
	require.NoError(t, err)

	tr.Log(entry("A"))

	require.Eventually(t, func() bool {
		return tr.Stats().SendFailures == 1
	}, time.Second, 10*time.Millisecond)
	// The failed batch stays queued for the retry.
	assert.Equal(t, 1, tr.QueueLen())

	cs.setStatus(http.StatusNoContent)
	fake.Advance(time.Second)

	require.Eventually(t, func() bool {
		return tr.Stats().BatchesSent == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, tr.QueueLen())
	assert.Equal(t, []string{"A", "A"}, cs.lines())
}

func TestTransport_RetryBudgetExhaustion(t *testing.T) {
	cs := newCaptureServer(t)
	cs.setStatus(http.StatusInternalServerError)
	fake := clock.NewFake()
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 1, MaxRetries: 2, RetryBaseDelay: time.Second, Clock: fake})
	require.NoError(t, err)

	tr.Log(entry("doomed"))

	// First attempt plus MaxRetries retries, then the batch is dropped
	// and the retry counter resets.
	for i := 1; i <= 2; i++ {
		require.Eventually(t, func() bool {
			return tr.Stats().SendFailures == int64(i)
		}, time.Second, 10*time.Millisecond)
		fake.Advance(30 * time.Second)
	}

	require.Eventually(t, func() bool {
		s := tr.Stats()
		return s.SendFailures == 3 && s.BatchesDropped == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, tr.QueueLen())

	// A later entry starts from a fresh retry counter.
	cs.setStatus(http.StatusNoContent)
	tr.Log(entry("next"))
	require.Eventually(t, func() bool {
		return tr.Stats().BatchesSent == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTransport_RetryPreservesBatchBeforeNewerEntries(t *testing.T) {
	cs := newCaptureServer(t)
	cs.setStatus(http.StatusInternalServerError)
	fake := clock.NewFake()
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 1, RetryBaseDelay: time.Second, Clock: fake})
	require.NoError(t, err)

	tr.Log(entry("first"))
	require.Eventually(t, func() bool {
		return tr.Stats().SendFailures == 1
	}, time.Second, 10*time.Millisecond)

	// Newer entries queue behind the batch waiting for its retry.
	tr.Log(entry("second"))
	cs.setStatus(http.StatusNoContent)
	fake.Advance(time.Second)

	require.Eventually(t, func() bool {
		return tr.Stats().BatchesSent == 2
	}, time.Second, 10*time.Millisecond)

	lines := cs.lines()
	// Attempt 1 (failed): first; attempt 2: first; attempt 3: second.
	assert.Equal(t, []string{"first", "first", "second"}, lines)
}

func TestTransport_NoDoubleSend(t *testing.T) {
	cs := newCaptureServer(t)
	release := make(chan struct{})
	cs.mu.Lock()
	cs.block = release
	cs.mu.Unlock()

	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 1})
	require.NoError(t, err)

	tr.Log(entry("A"))
	time.Sleep(50 * time.Millisecond) // let the first send reach the server
	tr.Log(entry("B"))
	time.Sleep(50 * time.Millisecond)

	// Only one request is in flight; B waits its turn.
	assert.Empty(t, cs.requests())
	cs.mu.Lock()
	cs.block = nil
	cs.mu.Unlock()
	close(release)

	require.Eventually(t, func() bool {
		return len(cs.requests()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, cs.lines())
	assert.Equal(t, 0, tr.QueueLen())
}

func TestTransport_EvictionKeepsNewest(t *testing.T) {
	cs := newCaptureServer(t)
	fake := clock.NewFake()
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 10, MaxQueueSize: 2, Clock: fake})
	require.NoError(t, err)

	tr.Log(entry("A"))
	tr.Log(entry("B"))
	tr.Log(entry("C"))

	assert.Equal(t, 2, tr.QueueLen())
	assert.Equal(t, int64(1), tr.Stats().Evicted)

	// Close drains the survivors; exactly B and C made it.
	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, []string{"B", "C"}, cs.lines())
}

func TestTransport_LogAfterCloseIsNoop(t *testing.T) {
	cs := newCaptureServer(t)
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 1})
	require.NoError(t, err)

	require.NoError(t, tr.Close(context.Background()))
	tr.Log(entry("late"))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, cs.requests())
}

func TestTransport_MergesLabelGroups(t *testing.T) {
	cs := newCaptureServer(t)
	tr, err := New(Config{URL: cs.srv.URL, BatchSize: 2, Labels: map[string]string{"app": "api"}})
	require.NoError(t, err)

	tr.Log(logward.Entry{Message: "x", Level: logward.InfoLevel, Time: time.Now()})
	tr.Log(logward.Entry{Message: "y", Level: logward.ErrorLevel, Time: time.Now()})

	require.Eventually(t, func() bool {
		return len(cs.requests()) == 1
	}, time.Second, 10*time.Millisecond)

	reqs := cs.requests()
	require.Len(t, reqs[0].Streams, 2)
	for _, s := range reqs[0].Streams {
		assert.Equal(t, "api", s.Stream["app"])
		assert.Contains(t, []string{"info", "error"}, s.Stream["level"])
	}
}
