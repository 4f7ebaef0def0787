// Package webhooks forwards committed ledger events to HTTP subscribers. Each
// delivery is HMAC signed and retried with exponential backoff.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"synthledger/core/events"
	"synthledger/core/types"
)

const (
	HeaderEvent     = "X-Ledger-Event"
	HeaderSignature = "X-Ledger-Signature"
	HeaderDelivery  = "X-Ledger-Delivery"

	defaultMaxAttempts    = 5
	defaultMinBackoff     = 2 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultQueueSize      = 256
	defaultAttemptTimeout = 15 * time.Second
)

// ErrClosed is returned when enqueueing on a closed dispatcher.
var ErrClosed = errors.New("webhook: dispatcher closed")

// Delivery is the JSON body posted for every forwarded event.
type Delivery struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Sequence   uint64            `json:"sequence"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Dispatcher queues ledger events and posts them to a single endpoint.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	topics      []string
	client      *http.Client
	logger      *slog.Logger
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan job
	wg     sync.WaitGroup
}

type job struct {
	eventType string
	id        string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTopics restricts forwarding to event types matching one of topics. A
// topic ending in "." matches every event type with that prefix.
func WithTopics(topics ...string) Option {
	return func(d *Dispatcher) {
		for _, topic := range topics {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				d.topics = append(d.topics, trimmed)
			}
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns its worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: defaultAttemptTimeout},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan job, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Close stops the dispatcher and waits for the inflight delivery to finish.
// Queued events that were not yet attempted are dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter. Events are dropped, with a warning, when
// the queue is full so a slow endpoint never stalls the ledger.
func (d *Dispatcher) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || d == nil {
		return
	}
	rendered := payload.Event()
	if rendered == nil || !d.wants(rendered.Type) {
		return
	}
	if err := d.Enqueue(rendered); err != nil {
		d.logger.Warn("webhook: event dropped", slog.String("type", rendered.Type), slog.Any("error", err))
	}
}

// Enqueue schedules evt for delivery without blocking.
func (d *Dispatcher) Enqueue(evt *types.Event) error {
	delivery := Delivery{
		DeliveryID: uuid.NewString(),
		Type:       evt.Type,
		Sequence:   evt.Height,
		Timestamp:  evt.Time(),
		Attributes: evt.Clone().Attributes,
	}
	data, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	if d.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case d.queue <- job{eventType: delivery.Type, id: delivery.DeliveryID, body: data}:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	default:
		return fmt.Errorf("webhook: queue full")
	}
}

func (d *Dispatcher) wants(eventType string) bool {
	if len(d.topics) == 0 {
		return true
	}
	for _, topic := range d.topics {
		if topic == eventType || (strings.HasSuffix(topic, ".") && strings.HasPrefix(eventType, topic)) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case next := <-d.queue:
			d.process(next)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(next job) {
	backoff := d.minBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.attemptTimeout())
		err := d.send(ctx, next)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook: delivery abandoned",
				slog.String("type", next.eventType),
				slog.String("delivery", next.id),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

// attemptTimeout bounds a single delivery. Clients without a timeout fall
// back to the dispatcher default.
func (d *Dispatcher) attemptTimeout() time.Duration {
	if d.client.Timeout > 0 {
		return d.client.Timeout
	}
	return defaultAttemptTimeout
}

func (d *Dispatcher) send(ctx context.Context, next job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(next.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, next.eventType)
	req.Header.Set(HeaderDelivery, next.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, next.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
