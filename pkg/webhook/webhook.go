// Package webhook posts audit engine events to configured HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditvault/auditvault/pkg/logging"
)

// EventType names an event that can trigger webhooks.
type EventType string

const (
	EventBackupCreated    EventType = "backup.created"
	EventBackupFailed     EventType = "backup.failed"
	EventVerifyFailed     EventType = "verify.failed"
	EventRestoreComplete  EventType = "restore.complete"
	EventRestoreFailed    EventType = "restore.failed"
	EventRetentionCleanup EventType = "retention.cleanup"

	// EventAll matches every event.
	EventAll EventType = "*"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Auditvault-Event"
	HeaderSignature = "X-Auditvault-Signature"
)

// Event is the JSON payload posted to webhooks.
type Event struct {
	Event       EventType      `json:"event"`
	Timestamp   string         `json:"timestamp"`
	ProjectRoot string         `json:"project_root,omitempty"`
	BackupID    string         `json:"backup_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Hook is a single webhook endpoint.
type Hook struct {
	URL    string      `yaml:"url"`
	Secret string      `yaml:"secret,omitempty"`
	Events []EventType `yaml:"events"`
}

// Config holds the webhook endpoints and delivery policy.
type Config struct {
	Hooks      []Hook        `yaml:"hooks"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
	QueueSize  int           `yaml:"queue_size"`
}

// DefaultConfig returns the default delivery policy with no hooks.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Timeout:    30 * time.Second,
		QueueSize:  100,
	}
}

var knownEvents = map[EventType]bool{
	EventBackupCreated: true, EventBackupFailed: true, EventVerifyFailed: true,
	EventRestoreComplete: true, EventRestoreFailed: true, EventRetentionCleanup: true,
	EventAll: true,
}

// Validate checks hook URLs and event names.
func (cfg Config) Validate() error {
	for i, h := range cfg.Hooks {
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("hook %d: url %q must be an absolute http(s) URL", i, h.URL)
		}
		if len(h.Events) == 0 {
			return fmt.Errorf("hook %d: no events", i)
		}
		for _, e := range h.Events {
			if !knownEvents[e] {
				return fmt.Errorf("hook %d: unknown event %q", i, e)
			}
		}
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	return nil
}

// Client delivers events. Events sent asynchronously are queued and
// delivered by one background worker; Close drains the queue.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type job struct {
	payload []byte
	event   EventType
	hook    Hook
}

// NewClient creates a client. No worker is started when cfg has no hooks.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logging.OrGlobal(logger),
		now:    time.Now,
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if len(cfg.Hooks) > 0 {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case j := <-c.queue:
					c.deliverLogged(j)
				default:
					return
				}
			}
		case j := <-c.queue:
			c.deliverLogged(j)
		}
	}
}

// Send delivers ev to every hook subscribed to its type. With async the
// deliveries are queued and Send returns at once; a full queue drops the
// event with a warning.
func (c *Client) Send(ev Event, async bool) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}

	var hooks []Hook
	for _, h := range c.cfg.Hooks {
		if matches(h, ev.Event) {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if ev.Timestamp == "" {
		ev.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var errs []error
	for _, h := range hooks {
		j := job{payload: payload, event: ev.Event, hook: h}
		if !async {
			if err := c.deliver(j); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		select {
		case c.queue <- j:
		default:
			c.logger.Warn("webhook queue full, dropping event",
				zap.String("event", string(ev.Event)), zap.String("url", h.URL))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) deliverLogged(j job) {
	if err := c.deliver(j); err != nil {
		c.logger.Warn("webhook delivery failed",
			zap.String("event", string(j.event)), zap.String("url", j.hook.URL), zap.Error(err))
	}
}

// deliver posts one payload, retrying on transport errors and non-2xx
// responses.
func (c *Client) deliver(j job) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return fmt.Errorf("webhook %s: %w (last error: %v)", j.hook.URL, c.ctx.Err(), lastErr)
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		req, err := http.NewRequest(http.MethodPost, j.hook.URL, bytes.NewReader(j.payload))
		if err != nil {
			return fmt.Errorf("webhook %s: %w", j.hook.URL, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "auditvault-webhook/1")
		req.Header.Set(HeaderEvent, string(j.event))
		if j.hook.Secret != "" {
			req.Header.Set(HeaderSignature, Sign(j.payload, j.hook.Secret))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return fmt.Errorf("webhook %s: %w", j.hook.URL, lastErr)
}

// Sign returns the HMAC-SHA256 signature of payload as "sha256=<hex>".
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matches(h Hook, event EventType) bool {
	for _, e := range h.Events {
		if e == event || e == EventAll {
			return true
		}
	}
	return false
}

// Close stops accepting events and waits for queued deliveries. Retries
// still pending when Close is called are abandoned.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
