package sharedscope

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reportQueueCap bounds the FIFO of queued reports kept while the
// coordinator is unreachable, degrading to a local cache instead of
// blocking the caller.
const reportQueueCap = 1024

// errNotConnected is returned by call when no connection to the
// coordinator is currently established.
var errNotConnected = errors.New("sharedscope: not connected to coordinator")

// Client is the shared-scope coordinator client: it reconnects with
// backoff, and queues report_error/report_success calls in a bounded
// FIFO while disconnected rather than blocking the caller.
type Client struct {
	socketPath string

	mu             sync.Mutex
	conn           net.Conn
	enc            *json.Encoder
	dec            *bufio.Reader
	queue          []Request
	cancel         context.CancelFunc
	stopped        chan struct{}
	stateListeners []func(name, state string)

	callMu    sync.Mutex
	pendingCh chan Response
}

// NewClient creates a Client targeting socketPath. Call Start to begin
// connecting and draining the queue in the background.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Start launches the background connect-and-drain loop.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop cancels the background loop and closes the connection.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	stopped := c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.stopped)

	operation := func() (struct{}, error) {
		if err := c.connect(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, err := backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxElapsedTime(0))
		if err != nil {
			return // ctx cancelled
		}

		c.drainQueue()
		c.readUntilDisconnect(ctx)
	}
}

func (c *Client) connect() error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.dec = bufio.NewReader(conn)
	c.mu.Unlock()
	return nil
}

// readUntilDisconnect blocks reading broadcast messages (on_state_change)
// until the connection drops or ctx is cancelled, then returns so run's
// outer loop reconnects.
func (c *Client) readUntilDisconnect(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	reader := c.dec
	c.mu.Unlock()
	if conn == nil {
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var resp Response
			if json.Unmarshal(line, &resp) == nil {
				if resp.Kind == KindOnStateChange {
					c.dispatchBroadcast(resp)
				} else {
					c.dispatchResponse(resp)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) dispatchBroadcast(resp Response) {
	c.mu.Lock()
	listeners := append([]func(name, state string)(nil), c.stateListeners...)
	c.mu.Unlock()
	for _, listener := range listeners {
		listener(resp.Name, resp.State)
	}
}

// dispatchResponse delivers a request/response reply to the call currently
// waiting on it. call serializes requests via callMu, so at most one
// pendingCh is ever outstanding.
func (c *Client) dispatchResponse(resp Response) {
	c.mu.Lock()
	ch := c.pendingCh
	c.pendingCh = nil
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// AddStateChangeHandler registers a callback invoked for every
// on_state_change broadcast the coordinator pushes. Multiple handlers may
// be registered (e.g. one per shared-scope breaker plus one updating the
// health aggregator).
func (c *Client) AddStateChangeHandler(handler func(name, state string)) {
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, handler)
	c.mu.Unlock()
}

// call sends req and blocks for the coordinator's matching response.
// Requests are serialized through callMu, so concurrent callers queue
// rather than race over the single pendingCh.
func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	enc := c.enc
	ch := make(chan Response, 1)
	c.pendingCh = ch
	c.mu.Unlock()

	if enc == nil {
		return Response{}, errNotConnected
	}
	if err := enc.Encode(req); err != nil {
		return Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (c *Client) drainQueue() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	enc := c.enc
	c.mu.Unlock()

	for _, req := range pending {
		if enc == nil {
			return
		}
		if err := enc.Encode(req); err != nil {
			c.enqueue(req)
			return
		}
	}
}

// send writes req if connected, else queues it (bounded FIFO, dropping
// the oldest entry on overflow) for the next reconnect to drain.
func (c *Client) send(req Request) {
	c.mu.Lock()
	enc := c.enc
	c.mu.Unlock()

	if enc == nil {
		c.enqueue(req)
		return
	}
	if err := enc.Encode(req); err != nil {
		c.enqueue(req)
	}
}

func (c *Client) enqueue(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= reportQueueCap {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, req)
}

// RegisterResource registers a resource's breaker parameters with the
// coordinator.
func (c *Client) RegisterResource(name string, errorThreshold, successThreshold int, errorTimeout time.Duration) {
	c.send(Request{
		Kind:             KindRegisterResource,
		Name:             name,
		ErrorThreshold:   errorThreshold,
		SuccessThreshold: successThreshold,
		ErrorTimeout:     errorTimeout.Milliseconds(),
	})
}

// ReportError reports a failure against name, timestamped now.
func (c *Client) ReportError(name string) {
	c.send(Request{Kind: KindReportError, Name: name, Timestamp: time.Now()})
}

// ReportSuccess reports a success against name.
func (c *Client) ReportSuccess(name string) {
	c.send(Request{Kind: KindReportSuccess, Name: name})
}

// AllowRequest asks the coordinator whether a request against name may
// proceed, mirroring circuitbreaker.Breaker.AllowRequest's decision
// exactly since the coordinator evaluates it against the same breaker
// type.
func (c *Client) AllowRequest(ctx context.Context, name string) (Response, error) {
	return c.call(ctx, Request{Kind: KindAllowRequest, Name: name})
}

// GetState retrieves the coordinator's current state for name without
// affecting it.
func (c *Client) GetState(ctx context.Context, name string) (Response, error) {
	return c.call(ctx, Request{Kind: KindGetState, Name: name})
}

// Reset asks the coordinator to force name's circuit back to closed.
func (c *Client) Reset(ctx context.Context, name string) (Response, error) {
	return c.call(ctx, Request{Kind: KindReset, Name: name})
}

// Subscribe registers this client's connection to receive on_state_change
// broadcasts for name under subscriberRef.
func (c *Client) Subscribe(name, subscriberRef string) {
	c.send(Request{Kind: KindSubscribe, Name: name, SubscriberRef: subscriberRef})
}

// Unsubscribe removes subscriberRef's subscription to name.
func (c *Client) Unsubscribe(name, subscriberRef string) {
	c.send(Request{Kind: KindUnsubscribe, Name: name, SubscriberRef: subscriberRef})
}
