package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	eventBufferSize = 64
	sendQueueSize   = 64

	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second

	// readDeadline bounds each blocking read so silent disconnects are
	// detected and shutdown is always observable.
	readDeadline = 3 * time.Minute

	writeTimeout = 10 * time.Second
)

var (
	// ErrQueueFull is returned by Send when the outbound queue is saturated.
	ErrQueueFull = errors.New("onebot: outbound queue full")

	// ErrRequestTimeout is returned by Request when no response with a
	// matching echo arrives within the deadline.
	ErrRequestTimeout = errors.New("onebot: request timed out")

	// ErrConnClosed is returned to request waiters when the connection
	// drops before their response arrives.
	ErrConnClosed = errors.New("onebot: connection closed")
)

// Client maintains the duplex websocket to the gateway: one sender loop
// draining an outbound queue, one receiver loop dispatching inbound
// frames, and echo-token correlation for request/response actions.
// Reconnects with capped exponential backoff on any connection fault.
type Client struct {
	url            string
	requestTimeout time.Duration

	events chan Event
	sendCh chan *outbound

	mu      sync.Mutex
	pending map[string]chan Response
	carry   *outbound // payload that failed mid-write, retried once after reconnect
}

type outbound struct {
	data    []byte
	retried bool
}

// NewClient creates a client for the given websocket URL.
// requestTimeout bounds the wait for each correlated action response.
func NewClient(url string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &Client{
		url:            url,
		requestTimeout: requestTimeout,
		events:         make(chan Event, eventBufferSize),
		sendCh:         make(chan *outbound, sendQueueSize),
		pending:        make(map[string]chan Response),
	}
}

// Events returns the inbound event stream. When the buffer fills the
// oldest event is dropped in favour of the newest.
func (c *Client) Events() <-chan Event { return c.events }

// Run connects and serves the connection until ctx is cancelled,
// reconnecting with backoff after every fault. Always returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	first := true

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("gateway dial failed", "url", c.url, "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if first {
			slog.Info("connected to gateway", "url", c.url)
			first = false
		} else {
			slog.Info("reconnected to gateway", "url", c.url)
		}
		backoff = initialBackoff

		err = c.serve(ctx, conn)
		c.failPending()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("gateway connection lost, reconnecting", "error", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("onebot: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20) // 1MB
	return conn, nil
}

// serve runs the receive and send loops until either fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, conn) })
	g.Go(func() error { return c.writeLoop(gctx, conn) })

	err := g.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, readDeadline)
		_, data, err := conn.Read(rctx)
		cancel()

		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("gateway silent disconnect detected")
			}
			return fmt.Errorf("onebot: read: %w", err)
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	// A payload whose write failed on the previous connection gets one
	// retry here before anything new is sent.
	c.mu.Lock()
	carried := c.carry
	c.carry = nil
	c.mu.Unlock()

	if carried != nil {
		if err := c.write(ctx, conn, carried); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ob := <-c.sendCh:
			if err := c.write(ctx, conn, ob); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, ob *outbound) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	err := conn.Write(wctx, websocket.MessageText, ob.data)
	cancel()
	if err == nil {
		return nil
	}
	if !ob.retried && ctx.Err() == nil {
		ob.retried = true
		c.mu.Lock()
		c.carry = ob
		c.mu.Unlock()
	}
	return fmt.Errorf("onebot: write: %w", err)
}

// dispatch routes an inbound frame: echoed action responses resolve
// their pending waiter, events go to the event stream, everything else
// is ignored.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Debug("gateway sent unparseable frame", "error", err)
		return
	}

	if f.Echo != "" {
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Debug("gateway sent unparseable response", "echo", f.Echo, "error", err)
			return
		}
		c.resolve(resp)
		return
	}

	if f.PostType == "" {
		return
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Debug("gateway sent unparseable event", "error", err)
		return
	}
	emit(ctx, c.events, ev)
}

func (c *Client) resolve(resp Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.Echo]
	if ok {
		delete(c.pending, resp.Echo)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
		close(ch)
	}
}

// failPending wakes every request waiter after a connection loss so no
// stale echo token survives into the next connection.
func (c *Client) failPending() {
	c.mu.Lock()
	for echo, ch := range c.pending {
		delete(c.pending, echo)
		close(ch)
	}
	c.mu.Unlock()
}

// Send marshals and enqueues a fire-and-forget action.
// Returns ErrQueueFull instead of blocking when the queue is saturated.
func (c *Client) Send(action string, params any) error {
	data, err := json.Marshal(request{Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("onebot: marshal %s: %w", action, err)
	}
	select {
	case c.sendCh <- &outbound{data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Request sends a correlated action and waits for the response matched
// by echo token, bounded by the configured request timeout.
func (c *Client) Request(ctx context.Context, action string, params any) (Response, error) {
	echo := uuid.NewString()
	data, err := json.Marshal(request{Action: action, Params: params, Echo: echo})
	if err != nil {
		return Response{}, fmt.Errorf("onebot: marshal %s: %w", action, err)
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[echo] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
	}

	select {
	case c.sendCh <- &outbound{data: data}:
	default:
		cleanup()
		return Response{}, ErrQueueFull
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrConnClosed
		}
		return resp, nil
	case <-timer.C:
		cleanup()
		return Response{}, fmt.Errorf("%w: %s", ErrRequestTimeout, action)
	case <-ctx.Done():
		cleanup()
		return Response{}, ctx.Err()
	}
}

// PendingRequests reports the number of in-flight correlated actions.
func (c *Client) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// emit sends to a buffered channel; drops the oldest entry if full.
func emit[T any](ctx context.Context, ch chan T, val T) {
	select {
	case <-ctx.Done():
		return
	case ch <- val:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- val:
		default:
		}
	}
}
