/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Event Log Client: validates, redacts, deduplicates,
             and buffers events before handing batches to a Sink,
             protected by a per-key and a global circuit breaker,
             with disk-spool durability for flush failures.
Context:     Every write the system makes funnels through here —
             it is the only component allowed to append to the
             landing table.
Suitability: L3 — concurrency + reliability engineering.
──────────────────────────────────────────────────────────────
*/

package eventlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/redact"
)

// Sink is the destination for accepted batches — in production, the
// landing table via the engine Adapter's Exec/Call surface.
type Sink interface {
	WriteEvents(ctx context.Context, events []Event) error
}

// ErrBackpressure is returned by Emit when the bounded buffer is full.
var ErrBackpressure = fmt.Errorf("eventlog: buffer full, event dropped")

// ErrCircuitOpen is returned by Emit when a per-key or the global breaker
// has tripped.
var ErrCircuitOpen = fmt.Errorf("eventlog: circuit open")

// Client is the Event Log Client (C2).
type Client struct {
	logger zerolog.Logger
	cfg    *config.Config
	sink   Sink
	spool  *spool

	ch     chan Event
	wg     sync.WaitGroup
	cancel context.CancelFunc

	keyBreakers   sync.Map // map[string]*gobreaker.CircuitBreaker
	globalBreaker *gobreaker.CircuitBreaker

	dedup sync.Map // map[dedupKey]*compressWindow

	rate     rateCounter
	received int64
	written  int64
	dropped  int64
	spooled  int64
}

// compressWindow tracks repeats of an identical action within a short
// window so §4.2's compression rule can collapse them into one occurrence
// event instead of N near-identical ones.
type compressWindow struct {
	mu        sync.Mutex
	first     Event
	count     int
	windowEnd time.Time
}

// New constructs a Client. Any events left in an existing spool directory
// from a previous run are not replayed automatically — call Replay after
// Start once the sink is reachable.
func New(logger zerolog.Logger, cfg *config.Config, sink Sink) (*Client, error) {
	sp, err := newSpool(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	c := &Client{}
	global := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "eventlog-global",
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 20 && counts.TotalFailures >= uint32(float64(counts.Requests)*cfg.GlobalBreakerFailRate)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.emitSelf(Event{
					Action:     "quality.circuit.broken",
					Source:     SourceSystem,
					SessionID:  "system",
					Attributes: map[string]interface{}{"breaker": "global"},
				})
			}
		},
	})

	*c = Client{
		logger:        logger.With().Str("component", "eventlog").Logger(),
		cfg:           cfg,
		sink:          sink,
		spool:         sp,
		ch:            make(chan Event, cfg.BufferCapacityEvents),
		globalBreaker: global,
	}
	return c, nil
}

// Start launches the flush worker. Replay, called after Start, drains any
// spooled batches from a previous run.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.worker(ctx)
	c.logger.Info().
		Int("buffer_capacity", c.cfg.BufferCapacityEvents).
		Int("batch_size", c.cfg.BatchSize).
		Dur("flush_interval", c.cfg.FlushInterval).
		Msg("event log client started")
}

// Stop flushes the remaining buffer and blocks until the worker exits.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().
		Int64("received", atomic.LoadInt64(&c.received)).
		Int64("written", atomic.LoadInt64(&c.written)).
		Int64("dropped", atomic.LoadInt64(&c.dropped)).
		Int64("spooled", atomic.LoadInt64(&c.spooled)).
		Msg("event log client stopped")
}

// Replay drains any events left over in the disk spool from a prior run,
// re-offering each batch to the sink directly (bypassing the buffer).
func (c *Client) Replay(ctx context.Context) error {
	return c.spool.Replay(func(batch []Event) error {
		return c.sink.WriteEvents(ctx, batch)
	})
}

// Emit validates, redacts, and deduplicates e, then enqueues it for batched
// flush. It never blocks: a full buffer yields ErrBackpressure, a tripped
// breaker yields ErrCircuitOpen.
func (c *Client) Emit(e Event) error {
	EnsureIdentity(&e)

	if reason := Validate(&e, c.cfg.EventMaxBytes); reason != "" {
		c.emitSelf(Event{
			Action:    "quality.event.rejected",
			Source:    SourceSystem,
			SessionID: nonEmptySessionID(e.SessionID),
			Attributes: map[string]interface{}{
				"action":        e.Action,
				"reject_reason": string(reason),
			},
		})
		return fmt.Errorf("eventlog: rejected (%s)", reason)
	}

	attrs, redacted := redactAttributes(e.Attributes)
	e.Attributes = attrs
	if redacted.Total() > 0 {
		if e.Meta == nil {
			e.Meta = map[string]interface{}{}
		}
		e.Meta["redactions"] = map[string]int{"email": redacted.Emails, "phone": redacted.Phones, "long_digits": redacted.LongDigits}
	}

	key := e.SessionID + "|" + e.Action
	breaker := c.breakerFor(key)
	if _, err := breaker.Execute(func() (interface{}, error) {
		// gobreaker only consults ReadyToTrip on a failed call, so the
		// request that takes the key past the threshold reports one.
		if breaker.Counts().Requests > c.cfg.CircuitThreshold {
			return nil, ErrCircuitOpen
		}
		return nil, nil
	}); err != nil {
		return ErrCircuitOpen
	}

	c.rate.tick()
	atomic.AddInt64(&c.received, 1)

	if collapsed, held := c.compress(e); held {
		_ = collapsed
		return nil
	}

	select {
	case c.ch <- e:
		return nil
	default:
		atomic.AddInt64(&c.dropped, 1)
		c.logger.Warn().Str("action", e.Action).Str("session_id", e.SessionID).Msg("event dropped: buffer full")
		return ErrBackpressure
	}
}

// emitSelf enqueues a system-generated self-observation event (a circuit
// trip, a permanent rejection) directly onto the flush buffer, bypassing
// the validation/breaker/dedup path that guards caller-submitted events —
// those are exactly what emitSelf exists to report on, so routing a
// synthetic event back through Emit would recurse.
func (c *Client) emitSelf(e Event) {
	EnsureIdentity(&e)
	e.Attributes, _ = redactAttributes(e.Attributes)
	select {
	case c.ch <- e:
	default:
		c.logger.Warn().Str("action", e.Action).Msg("self-observation event dropped: buffer full")
	}
}

func nonEmptySessionID(sid string) string {
	if sid == "" {
		return "system"
	}
	return sid
}

// splitBreakerKey recovers the (session_id, action) pair a per-key breaker
// was created for, so a trip can be reported with blocked_action (§8
// Scenario 3: "quality.circuit.broken{blocked_action: ...}").
func splitBreakerKey(key string) (sessionID, action string) {
	idx := strings.Index(key, "|")
	if idx < 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}

// redactAttributes scrubs every string attribute (natural_language included)
// and returns the scrubbed map with the redaction counts; Emit records the
// counts in Meta.
func redactAttributes(attrs map[string]interface{}) (map[string]interface{}, redact.Result) {
	if attrs == nil {
		return nil, redact.Result{}
	}
	return redact.ScrubAttributes(attrs)
}

// compress folds e into an in-flight occurrence counter if an identical
// (session_id, action) event has already been seen within CompressWindow,
// per spec.md §4.2: more than CompressMinOccurrences repeats in the window
// become one event carrying attributes.samples.
func (c *Client) compress(e Event) (Event, bool) {
	if c.cfg.CompressWindow <= 0 {
		return e, false
	}
	key := e.SessionID + "|" + e.Action
	now := time.Now()

	v, _ := c.dedup.LoadOrStore(key, &compressWindow{first: e, windowEnd: now.Add(c.cfg.CompressWindow)})
	w := v.(*compressWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.After(w.windowEnd) {
		w.first = e
		w.count = 1
		w.windowEnd = now.Add(c.cfg.CompressWindow)
		return e, false
	}

	w.count++
	if w.count <= c.cfg.CompressMinOccurrences {
		return e, false
	}
	if w.first.Attributes == nil {
		w.first.Attributes = map[string]interface{}{}
	}
	w.first.Attributes["samples"] = w.count
	return w.first, true
}

func (c *Client) breakerFor(key string) *gobreaker.CircuitBreaker {
	if v, ok := c.keyBreakers.Load(key); ok {
		return v.(*gobreaker.CircuitBreaker)
	}
	sessionID, action := splitBreakerKey(key)
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "eventlog-key-" + key,
		Interval: c.cfg.CircuitWindow,
		Timeout:  c.cfg.CircuitWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.cfg.CircuitThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.emitSelf(Event{
					Action:     "quality.circuit.broken",
					Source:     SourceSystem,
					SessionID:  nonEmptySessionID(sessionID),
					Attributes: map[string]interface{}{"blocked_action": action},
				})
			}
		},
	})
	actual, _ := c.keyBreakers.LoadOrStore(key, b)
	return actual.(*gobreaker.CircuitBreaker)
}

func (c *Client) worker(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, c.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.flush(batch)
		batch = make([]Event, 0, c.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			c.drain()
			return
		case e := <-c.ch:
			batch = append(batch, e)
			if c.batchSizeFor() <= len(batch) {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// batchSizeFor implements the auto-batching rule (§4.2): below the
// configured events-per-minute threshold, flush every event immediately
// (batch size 1) to minimize latency; above it, batch up to BatchSize.
func (c *Client) batchSizeFor() int {
	if c.rate.perMinute() > float64(c.cfg.AutoBatchThresholdPerMin) {
		return c.cfg.BatchSize
	}
	return 1
}

func (c *Client) drain() {
	for {
		select {
		case e := <-c.ch:
			if err := c.sink.WriteEvents(context.Background(), []Event{e}); err != nil {
				c.spoolBatch([]Event{e})
			} else {
				atomic.AddInt64(&c.written, 1)
			}
		default:
			return
		}
	}
}

func (c *Client) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := c.globalBreaker.Execute(func() (interface{}, error) {
		return nil, c.sink.WriteEvents(ctx, batch)
	})
	if err == nil {
		atomic.AddInt64(&c.written, int64(len(batch)))
		return
	}

	c.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("flush failed, spooling to disk")
	c.spoolBatch(batch)
}

func (c *Client) spoolBatch(batch []Event) {
	if err := c.spool.Write(batch); err != nil {
		atomic.AddInt64(&c.dropped, int64(len(batch)))
		c.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("batch dropped: spool write failed")
		return
	}
	atomic.AddInt64(&c.spooled, int64(len(batch)))
}

// Stats summarizes client throughput for the observability layer.
type Stats struct {
	Received int64
	Written  int64
	Dropped  int64
	Spooled  int64
	Buffered int
}

func (c *Client) Stats() Stats {
	return Stats{
		Received: atomic.LoadInt64(&c.received),
		Written:  atomic.LoadInt64(&c.written),
		Dropped:  atomic.LoadInt64(&c.dropped),
		Spooled:  atomic.LoadInt64(&c.spooled),
		Buffered: len(c.ch),
	}
}

// rateCounter is a coarse events-per-minute estimator used to drive
// auto-batching mode switches.
type rateCounter struct {
	mu        sync.Mutex
	count     int
	windowEnd time.Time
}

func (r *rateCounter) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.After(r.windowEnd) {
		r.count = 0
		r.windowEnd = now.Add(time.Minute)
	}
	r.count++
}

func (r *rateCounter) perMinute() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.count)
}
