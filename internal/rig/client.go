package rig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/bguthro/seestar-alp/internal/infrastructure/mqtt"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 5.0
	DefaultBurst   = 5

	// pendingGrace extends pending entries past the call timeout. Call
	// removes its own entry; expiry only reclaims entries it did not.
	pendingGrace = 5 * time.Second
)

// Transport is the MQTT surface the client needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandRecord describes one completed command for the journal.
type CommandRecord struct {
	ID       string
	DeviceID string
	Method   string
	Params   map[string]any
	Duration time.Duration
	Err      error
}

// Journal records command outcomes. Implementations must not block for long.
type Journal interface {
	RecordCommand(ctx context.Context, rec CommandRecord)
}

// Options configures a Client.
type Options struct {
	// DeviceID selects the seestar/{device}/... topics.
	DeviceID string

	// Timeout bounds how long Call waits for a response.
	Timeout time.Duration

	// Rate and Burst configure the command rate limiter.
	Rate  float64
	Burst int

	// QoS is used for command publishes and subscriptions.
	QoS byte
}

// request is the command envelope published to the device.
type request struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// response is the envelope the device answers with.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client sends commands to the rig and receives its events over MQTT.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	transport Transport
	opts      Options
	topics    mqtt.Topics
	limiter   *rate.Limiter
	pending   *cache.Cache

	// subMu serialises subscription changes. Transport calls are made
	// without mu held, since handlers read the logger under it.
	subMu sync.Mutex

	mu        sync.RWMutex
	started   bool
	listening bool
	logger    Logger
	journal   Journal
}

// New creates a client. Start must be called before Call.
func New(transport Transport, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Burst < 1 {
		opts.Burst = DefaultBurst
	}

	return &Client{
		transport: transport,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		pending:   cache.New(opts.Timeout+pendingGrace, opts.Timeout),
		logger:    noopLogger{},
	}
}

// SetLogger sets the client's logger. Nil restores the noop logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// SetJournal sets the command journal. Nil disables journaling.
func (c *Client) SetJournal(j Journal) {
	c.mu.Lock()
	c.journal = j
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) getJournal() Journal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.journal
}

// DeviceID returns the configured device id.
func (c *Client) DeviceID() string {
	return c.opts.DeviceID
}

// Start subscribes to the device's response topic.
func (c *Client) Start() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if started {
		return nil
	}

	if err := c.transport.Subscribe(c.topics.DeviceResponse(c.opts.DeviceID), c.opts.QoS, c.handleResponse); err != nil {
		return fmt.Errorf("subscribing to responses: %w", err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// Close unsubscribes from the device topics. Calls in flight time out.
func (c *Client) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	started, listening := c.started, c.listening
	c.started, c.listening = false, false
	c.mu.Unlock()

	var firstErr error
	if started {
		if err := c.transport.Unsubscribe(c.topics.DeviceResponse(c.opts.DeviceID)); err != nil {
			firstErr = err
		}
	}
	if listening {
		if err := c.transport.Unsubscribe(c.topics.AllDeviceEvents(c.opts.DeviceID)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Call sends a command and waits for its response.
//
// Parameters:
//   - ctx: Context for cancellation; the configured timeout also applies
//   - method: Device method name
//   - params: Method parameters, may be nil
//
// Returns:
//   - json.RawMessage: The response result (may be empty)
//   - error: ErrNotStarted, ErrRateLimited, ErrCommandTimeout, a *CommandError,
//     a transport error or the context's error
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (result json.RawMessage, err error) {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	id := uuid.NewString()
	began := time.Now()
	defer func() {
		c.record(ctx, CommandRecord{
			ID:       id,
			DeviceID: c.opts.DeviceID,
			Method:   method,
			Params:   params,
			Duration: time.Since(began),
			Err:      err,
		})
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", method, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}

	ch := make(chan response, 1)
	c.pending.Set(id, ch, cache.DefaultExpiration)
	defer c.pending.Delete(id)

	if err := c.transport.Publish(c.topics.DeviceCommand(c.opts.DeviceID), payload, c.opts.QoS, false); err != nil {
		return nil, fmt.Errorf("publishing %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &CommandError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v", ErrCommandTimeout, method, time.Since(began).Round(time.Millisecond))
		}
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// handleResponse routes a response to its waiting caller.
func (c *Client) handleResponse(_ string, payload []byte) error {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if resp.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidResponse)
	}

	v, ok := c.pending.Get(resp.ID)
	if !ok {
		c.getLogger().Debug("dropping late or unknown response", "id", resp.ID)
		return nil
	}
	c.pending.Delete(resp.ID)

	ch, ok := v.(chan response)
	if !ok {
		return fmt.Errorf("%w: pending entry for %s has type %T", ErrInvalidResponse, resp.ID, v)
	}
	select {
	case ch <- resp:
	default:
	}
	return nil
}

// Pending returns the number of commands awaiting a response.
func (c *Client) Pending() int {
	return c.pending.ItemCount()
}

func (c *Client) record(ctx context.Context, rec CommandRecord) {
	log := c.getLogger()
	if rec.Err != nil {
		log.Warn("rig command failed", "method", rec.Method, "id", rec.ID, "error", rec.Err)
	} else {
		log.Debug("rig command complete", "method", rec.Method, "id", rec.ID, "duration", rec.Duration)
	}
	if j := c.getJournal(); j != nil {
		j.RecordCommand(context.WithoutCancel(ctx), rec)
	}
}

// decodeObject decodes a JSON object keeping numbers as json.Number.
func decodeObject(data json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
