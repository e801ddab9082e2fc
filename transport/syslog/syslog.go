// Package syslog delivers log entries to a syslog daemon over a
// long-lived UDP, TCP or TLS connection. Lines queue while the
// connection is down and the transport reconnects with exponential
// backoff, indefinitely.
package syslog

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"strconv"
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

// Protocol selects the socket type. It is fixed at construction.
type Protocol int

const (
	ProtocolUDP Protocol = iota
	ProtocolTCP
	ProtocolTLS
)

const (
	defaultPort           = 514
	defaultTLSPort        = 6514
	defaultMaxQueueSize   = 1000
	defaultRetryBaseDelay = time.Second
	defaultDialTimeout    = 5 * time.Second
)

// Config holds the transport construction options.
type Config struct {
	// Host is the daemon address; defaults to localhost.
	Host string
	// Port defaults to 514 (6514 for TLS).
	Port int
	// Protocol is the socket type; datagram mode attempts sends
	// directly and queues on failure instead of holding a session.
	Protocol Protocol
	// Facility is the syslog facility code, 0 through 23.
	Facility int
	// AppName tags each line; defaults to the process name.
	AppName string
	// PID defaults to the current process id.
	PID int
	// Format selects the legacy or the structured line format.
	Format Format
	// Hostname defaults to os.Hostname.
	Hostname string

	// TLS options, used with ProtocolTLS.
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool

	// MaxQueueSize bounds the outgoing line queue.
	MaxQueueSize int
	// RetryBaseDelay seeds the reconnect backoff.
	RetryBaseDelay time.Duration
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// Debug enables diagnostic output on stderr.
	Debug bool

	Clock clock.Clock
}

// Stats is a snapshot of the transport counters.
type Stats struct {
	Enqueued      int64
	Evicted       int64
	Sent          int64
	WriteFailures int64
	DialFailures  int64
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Transport is the persistent-connection delivery transport.
type Transport struct {
	cfg     Config
	addr    string
	tlsConf *tls.Config
	clk     clock.Clock
	diag    zerolog.Logger

	mu             sync.Mutex
	state          connState
	conn           net.Conn
	connGen        int
	lines          *queue.Queue[string]
	flushing       bool
	retries        int
	reconnectTimer clock.Timer
	closed         bool
	stats          Stats
	wg             sync.WaitGroup
}

var _ logward.Transport = (*Transport)(nil)
var _ logward.Closer = (*Transport)(nil)

// New validates the config and returns the transport. No connection is
// attempted until the first entry arrives.
func New(cfg Config) (*Transport, error) {
	if cfg.Facility < 0 || cfg.Facility > 23 {
		return nil, errors.Newf("syslog: facility %d out of range [0,23]", cfg.Facility)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port <= 0 {
		if cfg.Protocol == ProtocolTLS {
			cfg.Port = defaultTLSPort
		} else {
			cfg.Port = defaultPort
		}
	}
	if cfg.AppName == "" {
		cfg.AppName = filepath.Base(os.Args[0])
	}
	if cfg.PID <= 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		} else {
			cfg.Hostname = "localhost"
		}
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	var tlsConf *tls.Config
	if cfg.Protocol == ProtocolTLS {
		var err error
		tlsConf, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
	}

	return &Transport{
		cfg:     cfg,
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tlsConf: tlsConf,
		clk:     clk,
		diag:    diag.New("syslog", cfg.Debug),
		lines:   queue.New[string](cfg.MaxQueueSize),
	}, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "syslog: read CA file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Newf("syslog: no certificates in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "syslog: load client certificate")
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// Log formats the entry to the selected line protocol and enqueues it
// for delivery. Connection trouble never surfaces here.
func (t *Transport) Log(entry logward.Entry) {
	line := formatLine(t.cfg.Format, t.cfg.Facility, t.cfg.Hostname, t.cfg.AppName, t.cfg.PID, entry)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.lines.Push(line) {
		t.stats.Evicted++
		t.diag.Warn().Int("max", t.cfg.MaxQueueSize).Msg("queue full, evicting oldest line")
	}
	t.stats.Enqueued++
	t.triggerLocked()
}

// triggerLocked moves delivery forward from whatever state the
// transport is in. A pending reconnect timer keeps ownership of the
// retry schedule.
func (t *Transport) triggerLocked() {
	switch t.state {
	case stateConnected:
		t.startFlushLocked()
	case stateDisconnected:
		if t.reconnectTimer == nil {
			t.connectLocked()
		}
	case stateConnecting:
		// A dial is underway; the queue drains once it lands.
	}
}

func (t *Transport) connectLocked() {
	if t.cfg.Protocol == ProtocolUDP {
		// Datagram sockets are connectionless; binding the remote
		// address is immediate and there is no Connecting state.
		conn, err := net.DialTimeout("udp", t.addr, t.cfg.DialTimeout)
		if err != nil {
			t.stats.DialFailures++
			t.scheduleReconnectLocked(err)
			return
		}
		t.conn = conn
		t.connGen++
		t.state = stateConnected
		t.retries = 0
		t.startFlushLocked()
		return
	}

	t.state = stateConnecting
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		conn, err := t.dial()
		t.onConnect(conn, err)
	}()
}

func (t *Transport) dial() (net.Conn, error) {
	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	if t.cfg.Protocol == ProtocolTLS {
		return tls.DialWithDialer(&d, "tcp", t.addr, t.tlsConf)
	}
	return d.Dial("tcp", t.addr)
}

func (t *Transport) onConnect(conn net.Conn, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.state = stateDisconnected
		t.stats.DialFailures++
		t.scheduleReconnectLocked(err)
		return
	}

	t.conn = conn
	t.connGen++
	t.state = stateConnected
	t.retries = 0
	t.diag.Debug().Str("addr", t.addr).Msg("connected")

	// Watch the read side so a remote close triggers reconnection
	// without waiting for the next write.
	gen := t.connGen
	t.wg.Add(1)
	go t.watch(conn, gen)

	t.startFlushLocked()
}

func (t *Transport) watch(conn net.Conn, gen int) {
	defer t.wg.Done()
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			t.mu.Lock()
			if !t.closed && t.connGen == gen && t.conn == conn {
				t.teardownLocked(conn)
				t.scheduleReconnectLocked(err)
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Transport) scheduleReconnectLocked(cause error) {
	if t.reconnectTimer != nil || t.state != stateDisconnected {
		return
	}
	t.retries++
	delay := backoff.Delay(t.cfg.RetryBaseDelay, t.retries)
	t.diag.Warn().Err(cause).Int("attempt", t.retries).Dur("delay", delay).Msg("connection lost, reconnect scheduled")
	t.reconnectTimer = t.clk.AfterFunc(delay, t.reconnectFire)
}

func (t *Transport) reconnectFire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reconnectTimer = nil
	if t.closed || t.state != stateDisconnected {
		return
	}
	t.connectLocked()
}

func (t *Transport) teardownLocked(conn net.Conn) {
	if t.conn != conn {
		return
	}
	t.conn = nil
	t.connGen++
	t.state = stateDisconnected
	conn.Close()
}

func (t *Transport) startFlushLocked() {
	if t.flushing || t.lines.Len() == 0 {
		return
	}
	t.flushing = true
	t.wg.Add(1)
	go t.flush()
}

// flush drains the queue in order. A failed write requeues the line at
// the front and halts until the next successful connect.
func (t *Transport) flush() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		if t.closed || t.state != stateConnected || t.lines.Len() == 0 {
			t.flushing = false
			t.mu.Unlock()
			return
		}
		line, _ := t.lines.Pop()
		conn := t.conn
		t.mu.Unlock()

		err := t.write(conn, line)

		t.mu.Lock()
		if err == nil {
			t.stats.Sent++
			t.mu.Unlock()
			continue
		}
		t.lines.PushFront(line)
		t.stats.WriteFailures++
		if t.conn != nil && t.conn != conn && t.state == stateConnected {
			// The connection was already replaced under us; keep
			// draining on the new one.
			t.mu.Unlock()
			continue
		}
		t.flushing = false
		t.teardownLocked(conn)
		t.scheduleReconnectLocked(err)
		t.mu.Unlock()
		return
	}
}

func (t *Transport) write(conn net.Conn, line string) error {
	if t.cfg.Protocol == ProtocolUDP {
		_, err := conn.Write([]byte(line))
		return err
	}
	_, err := conn.Write([]byte(line + "\n"))
	return err
}

// Stats returns a snapshot of the transport counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// QueueLen reports the number of undelivered lines.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lines.Len()
}

// Close cancels any pending reconnect, tears down the socket and
// returns once the transport goroutines have finished.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	conn := t.conn
	t.conn = nil
	t.state = stateDisconnected
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "syslog: waiting for teardown")
	}
}
