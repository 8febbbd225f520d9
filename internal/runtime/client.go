package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultReconnectMin   = time.Second
	defaultReconnectMax   = 30 * time.Second
	helloReadTimeout      = 10 * time.Second
)

// Config holds connection settings for the runtime client.
type Config struct {
	URL            string
	Token          string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = defaultReconnectMin
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is a reconnecting WebSocket client for the remote agent runtime. It
// correlates request/response pairs by envelope id and pushes unsolicited
// events to the handler registered with OnEvent.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Envelope

	connected atomic.Bool
	onEvent   func(context.Context, Event)
}

// NewClient creates a Client. Run must be called to establish the connection.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		pending: make(map[string]chan Envelope),
	}
}

// OnEvent registers the handler for unsolicited events. Must be called
// before Run.
func (c *Client) OnEvent(fn func(context.Context, Event)) {
	c.onEvent = fn
}

// Connected implements approval.RuntimeClient.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run dials the runtime and keeps the connection alive, reconnecting with
// exponential backoff. It blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	backoff := c.cfg.ReconnectMin

	for {
		established, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			backoff = c.cfg.ReconnectMin
		}
		c.logger.Warn("runtime connection lost",
			"error", err,
			"retry_in", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// runOnce runs a single connection session: dial, hello handshake, read loop.
// The bool reports whether the handshake completed.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("runtime connected", "url", c.cfg.URL)

	err = c.readLoop(ctx, conn)
	c.teardown(conn)
	return true, err
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	hello := HelloPayload{Token: c.cfg.Token, Client: "studio"}
	payload, _ := json.Marshal(hello)
	data, _ := json.Marshal(Envelope{
		Type:      MsgHello,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	ackCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
	defer cancel()
	_, raw, err := conn.Read(ackCtx)
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal hello_ack envelope: %w", err)
	}
	if env.Type != MsgHelloAck {
		return fmt.Errorf("expected hello_ack, got %s", env.Type)
	}

	var ack HelloAckPayload
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("%w: %s", ErrHelloRejected, ack.Reason)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("invalid message from runtime", "error", err)
			continue
		}

		switch env.Type {
		case MsgEvent:
			var ev Event
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				c.logger.Warn("invalid event payload", "error", err)
				continue
			}
			if c.onEvent != nil {
				c.onEvent(ctx, ev)
			}

		default:
			if env.ID == "" {
				c.logger.Warn("unroutable message from runtime", "type", env.Type)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				// Non-blocking send: drop duplicate responses instead of
				// stalling the read loop.
				select {
				case ch <- env:
				default:
				}
			}
		}
	}
}

// teardown marks the connection down and fails every in-flight request.
func (c *Client) teardown(conn *websocket.Conn) {
	c.connected.Store(false)
	_ = conn.Close(websocket.StatusGoingAway, "session over")

	c.mu.Lock()
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// call sends a request envelope and waits for its correlated response. A
// closed response channel means the connection dropped mid-flight.
func (c *Client) call(ctx context.Context, msgType MessageType, payload any) (Envelope, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Envelope{}, ErrNotConnected
	}

	id, err := generateCorrelationID()
	if err != nil {
		c.mu.Unlock()
		return Envelope{}, err
	}
	ch := make(chan Envelope, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("runtime: marshal %s: %w", msgType, err)
	}
	data, _ := json.Marshal(Envelope{
		Type:      msgType,
		ID:        id,
		Payload:   body,
		Timestamp: time.Now(),
	})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return Envelope{}, fmt.Errorf("runtime: write %s: %w", msgType, err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return Envelope{}, ErrDisconnected
		}
		if env.Type == MsgError {
			var msg struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(env.Payload, &msg)
			return Envelope{}, fmt.Errorf("runtime: %s rejected: %s", msgType, msg.Message)
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Abort implements approval.RuntimeClient.
func (c *Client) Abort(ctx context.Context, sessionKey string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	env, err := c.call(ctx, MsgAbort, AbortRequest{SessionKey: sessionKey})
	if err != nil {
		return err
	}
	var res AbortResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return fmt.Errorf("runtime: decode abort_result: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("runtime: abort rejected: %s", res.Error)
	}
	return nil
}

// Wait implements approval.RuntimeClient. The remote performs the bounded
// wait; the local deadline adds the request timeout as slack so a healthy
// connection never times out before the remote answers.
func (c *Client) Wait(ctx context.Context, runID string, timeout time.Duration) (approval.RunStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+c.cfg.RequestTimeout)
	defer cancel()

	env, err := c.call(ctx, MsgWait, WaitRequest{RunID: runID, TimeoutMS: timeout.Milliseconds()})
	if err != nil {
		return "", err
	}
	var res WaitResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return "", fmt.Errorf("runtime: decode wait_result: %w", err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("runtime: wait failed: %s", res.Error)
	}
	if res.Status == "" {
		return "", errors.New("runtime: wait_result missing status")
	}
	return approval.RunStatus(res.Status), nil
}

// SendMessage implements approval.RuntimeClient.
func (c *Client) SendMessage(ctx context.Context, sessionKey, text string, opts approval.SendOptions) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	env, err := c.call(ctx, MsgSend, SendRequest{
		SessionKey:   sessionKey,
		Text:         text,
		SuppressEcho: opts.SuppressEcho,
		Marker:       opts.Marker,
	})
	if err != nil {
		return err
	}
	var res SendResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return fmt.Errorf("runtime: decode send_result: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("runtime: send rejected: %s", res.Error)
	}
	return nil
}

// resolve performs the resolve RPC. Used by RemoteResolver.
func (c *Client) resolve(ctx context.Context, approvalID string, decision approval.Decision) (ResolveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	env, err := c.call(ctx, MsgResolve, ResolveRequest{
		ApprovalID: approvalID,
		Decision:   string(decision),
	})
	if err != nil {
		return ResolveResult{}, err
	}
	var res ResolveResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		return ResolveResult{}, fmt.Errorf("runtime: decode resolve_result: %w", err)
	}
	return res, nil
}

func generateCorrelationID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
