// Package loki ships log entries to a Loki-compatible aggregation
// endpoint. Entries are queued, batched by size or linger time and
// pushed as one HTTP request per batch; failed pushes are retried with
// exponential backoff before the batch is dropped.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/logward/logward"
	"github.com/logward/logward/internal/backoff"
	"github.com/logward/logward/internal/clock"
	"github.com/logward/logward/internal/diag"
	"github.com/logward/logward/internal/queue"
)

const (
	pushPath = "/loki/api/v1/push"

	defaultBatchSize      = 10
	defaultBatchWait      = 5 * time.Second
	defaultMaxQueueSize   = 10000
	defaultMaxRetries     = 5
	defaultRetryBaseDelay = time.Second
	defaultMaxLabelCount  = 10
	defaultTimeout        = 5 * time.Second
)

// Config holds the transport construction options. Only URL is
// required.
type Config struct {
	// URL is the Loki base URL; the push path is appended if missing.
	URL string
	// Labels is the static label set attached to every stream.
	Labels map[string]string
	// Username/Password enable HTTP basic auth when Username is set.
	Username string
	Password string
	// TenantID is sent as the X-Scope-OrgID header when set.
	TenantID string
	// BatchSize is the entry count that triggers an immediate flush.
	BatchSize int
	// BatchWait is how long an incomplete batch lingers before being
	// sent anyway.
	BatchWait time.Duration
	// MaxQueueSize bounds the queue; the oldest entry is evicted when
	// the bound is hit.
	MaxQueueSize int
	// MaxRetries is the retry budget per batch.
	MaxRetries int
	// RetryBaseDelay seeds the exponential backoff.
	RetryBaseDelay time.Duration
	// MaxLabelCount caps the per-stream label set.
	MaxLabelCount int
	// Timeout applies to each push request when Client is nil.
	Timeout time.Duration
	// Debug enables diagnostic output on stderr.
	Debug bool

	// Client overrides the HTTP client, Clock the timer source. Both
	// are mainly test hooks.
	Client *http.Client
	Clock  clock.Clock
}

// Stats is a snapshot of the transport counters.
type Stats struct {
	Enqueued       int64
	Evicted        int64
	BatchesSent    int64
	SendFailures   int64
	BatchesDropped int64
}

// Transport is the batching HTTP delivery transport.
type Transport struct {
	cfg     Config
	pushURL string
	client  *http.Client
	clk     clock.Clock
	diag    zerolog.Logger

	mu          sync.Mutex
	pending     *queue.Queue[item]
	inflight    []item
	sending     bool
	retries     int
	lingerTimer clock.Timer
	retryTimer  clock.Timer
	closed      bool
	stats       Stats
	wg          sync.WaitGroup
}

var _ logward.Transport = (*Transport)(nil)
var _ logward.Closer = (*Transport)(nil)

// New validates the config and returns the transport. A missing URL is
// the only construction failure.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("loki: endpoint URL is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = defaultBatchWait
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxLabelCount <= 0 {
		cfg.MaxLabelCount = defaultMaxLabelCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	pushURL := strings.TrimSuffix(cfg.URL, "/")
	if !strings.HasSuffix(pushURL, pushPath) {
		pushURL += pushPath
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	return &Transport{
		cfg:     cfg,
		pushURL: pushURL,
		client:  client,
		clk:     clk,
		diag:    diag.New("loki", cfg.Debug),
		pending: queue.New[item](0),
	}, nil
}

// Log formats the entry into its push representation and enqueues it.
// Delivery failures never surface here.
func (t *Transport) Log(entry logward.Entry) {
	it := item{
		labels: buildLabels(entry.Level.String(), t.cfg.Labels, entry.Fields, t.cfg.MaxLabelCount),
		ts:     entry.Time,
		line:   entry.Message,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	// The bound spans pending plus the in-flight batch. In-flight items
	// cannot be taken back mid-send, so eviction targets the oldest
	// pending item.
	if len(t.inflight)+t.pending.Len() >= t.cfg.MaxQueueSize {
		if _, ok := t.pending.Pop(); ok {
			t.stats.Evicted++
			t.diag.Warn().Int("max", t.cfg.MaxQueueSize).Msg("queue full, evicting oldest entry")
		}
	}
	t.pending.Push(it)
	t.stats.Enqueued++
	t.scheduleLocked(false)
}

// scheduleLocked decides what happens next: send now when the batch
// threshold is reached or a flush was requested, otherwise arm the
// linger timer. A pending retry keeps ownership of the queue so the
// failed batch goes out before anything newer.
func (t *Transport) scheduleLocked(urgent bool) {
	if t.sending || t.closed || t.retryTimer != nil {
		return
	}
	if t.pending.Len() >= t.cfg.BatchSize || (urgent && t.pending.Len() > 0) || len(t.inflight) > 0 {
		t.startSendLocked()
		return
	}
	if t.pending.Len() > 0 && t.lingerTimer == nil {
		t.lingerTimer = t.clk.AfterFunc(t.cfg.BatchWait, t.lingerFire)
	}
}

func (t *Transport) lingerFire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lingerTimer = nil
	if t.sending || t.closed || t.retryTimer != nil {
		return
	}
	if t.pending.Len() > 0 || len(t.inflight) > 0 {
		t.startSendLocked()
	}
}

func (t *Transport) retryFire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryTimer = nil
	if t.sending || t.closed {
		return
	}
	if len(t.inflight) > 0 || t.pending.Len() > 0 {
		t.startSendLocked()
	}
}

// startSendLocked takes the next batch (or the batch being retried)
// and pushes it on a separate goroutine. The sending flag guarantees a
// single in-flight request per instance.
func (t *Transport) startSendLocked() {
	if t.lingerTimer != nil {
		t.lingerTimer.Stop()
		t.lingerTimer = nil
	}
	if len(t.inflight) == 0 {
		t.inflight = t.pending.PopN(t.cfg.BatchSize)
	}
	if len(t.inflight) == 0 {
		return
	}
	t.sending = true

	batch := make([]item, len(t.inflight))
	copy(batch, t.inflight)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.sendDone(t.push(batch), len(batch))
	}()
}

func (t *Transport) sendDone(err error, size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sending = false

	if err == nil {
		t.diag.Debug().Int("entries", size).Msg("batch delivered")
		t.stats.BatchesSent++
		t.inflight = nil
		t.retries = 0
		if !t.closed && t.pending.Len() > 0 {
			t.scheduleLocked(true)
		}
		return
	}

	t.stats.SendFailures++
	t.retries++
	if t.retries > t.cfg.MaxRetries {
		t.diag.Error().Err(err).Int("entries", size).Msg("retry budget exhausted, dropping batch")
		t.stats.BatchesDropped++
		t.inflight = nil
		t.retries = 0
		if !t.closed && t.pending.Len() > 0 {
			t.scheduleLocked(true)
		}
		return
	}
	if t.closed {
		return
	}
	delay := backoff.Delay(t.cfg.RetryBaseDelay, t.retries)
	t.diag.Warn().Err(err).Int("attempt", t.retries).Dur("delay", delay).Msg("push failed, retry scheduled")
	t.retryTimer = t.clk.AfterFunc(delay, t.retryFire)
}

// push issues one request carrying the whole batch. Network errors and
// non-2xx responses are equivalent: both are retryable.
func (t *Transport) push(batch []item) error {
	body, err := json.Marshal(buildPayload(batch))
	if err != nil {
		return errors.Wrap(err, "marshal push payload")
	}

	req, err := http.NewRequest(http.MethodPost, t.pushURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Username != "" {
		req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	}
	if t.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", t.cfg.TenantID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "push request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("push rejected with status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// Stats returns a snapshot of the transport counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// QueueLen reports the number of undelivered entries, the in-flight
// batch included.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) + t.pending.Len()
}

// Close stops the timers, waits for an in-flight push and drains what
// remains with one best-effort attempt per batch.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.lingerTimer != nil {
		t.lingerTimer.Stop()
		t.lingerTimer = nil
	}
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "loki: waiting for in-flight push")
	}

	t.mu.Lock()
	remaining := append(t.inflight, t.pending.PopN(t.pending.Len())...)
	t.inflight = nil
	t.mu.Unlock()

	for len(remaining) > 0 {
		n := min(t.cfg.BatchSize, len(remaining))
		if err := t.push(remaining[:n]); err != nil {
			t.diag.Warn().Err(err).Int("entries", len(remaining)).Msg("dropping undelivered entries on close")
			t.mu.Lock()
			t.stats.BatchesDropped++
			t.mu.Unlock()
			break
		}
		t.mu.Lock()
		t.stats.BatchesSent++
		t.mu.Unlock()
		remaining = remaining[n:]
	}
	return nil
}
