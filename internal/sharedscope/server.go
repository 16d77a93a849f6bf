package sharedscope

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/circuitbreaker"
)

// Server is the shared-scope coordinator: it owns one classical breaker
// per registered resource name and broadcasts state transitions to every
// subscribed connection.
type Server struct {
	socketPath string
	listener   net.Listener

	mu          sync.Mutex
	breakers    map[string]*circuitbreaker.Breaker
	subscribers map[string][]*subscriberConn

	closeOnce sync.Once
	done      chan struct{}
}

type subscriberConn struct {
	ref  string
	conn net.Conn
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewServer creates a Server bound to socketPath. Call Serve to start
// accepting connections.
func NewServer(socketPath string) (*Server, error) {
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		socketPath:  socketPath,
		listener:    listener,
		breakers:    make(map[string]*circuitbreaker.Breaker),
		subscribers: make(map[string][]*subscriberConn),
		done:        make(chan struct{}),
	}, nil
}

// Serve accepts connections until Close is called. Run it in its own
// goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting connections and releases the socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
		_ = os.Remove(s.socketPath)
	})
	return err
}

// SweepOnce transitions any open breaker whose error_timeout has elapsed
// to half_open, and broadcasts the change. Intended to run on a periodic
// background schedule alongside Serve.
func (s *Server) SweepOnce() {
	s.mu.Lock()
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.mu.Lock()
		b, ok := s.breakers[name]
		s.mu.Unlock()
		if !ok {
			continue
		}
		before := b.State()
		// AllowRequest lazily performs the open->half_open transition
		// when error_timeout has elapsed; discard the admission result,
		// we only care about the side effect here.
		_, _ = b.AllowRequest()
		if b.State() != before {
			s.broadcast(name, b.State().String())
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	enc := json.NewEncoder(conn)

	var ownedRef string
	var subscribedNames []string
	defer func() {
		if ownedRef != "" {
			s.pruneSubscriber(subscribedNames, ownedRef)
		}
	}()

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				_ = enc.Encode(Response{Kind: req.Kind, Error: err.Error()})
				continue
			}

			resp := s.dispatch(req, conn, enc)
			if req.Kind == KindSubscribe {
				ownedRef = req.SubscriberRef
				subscribedNames = append(subscribedNames, req.Name)
			}
			if resp != nil {
				_ = enc.Encode(*resp)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request, conn net.Conn, enc *json.Encoder) *Response {
	switch req.Kind {
	case KindRegisterResource:
		return s.handleRegister(req)
	case KindReportError:
		return s.handleReportError(req)
	case KindReportSuccess:
		return s.handleReportSuccess(req)
	case KindGetState:
		return s.handleGetState(req)
	case KindGetOpenStates:
		return s.handleGetOpenStates()
	case KindAllowRequest:
		return s.handleAllowRequest(req)
	case KindReset:
		return s.handleReset(req)
	case KindSubscribe:
		s.handleSubscribe(req, conn, enc)
		return &Response{Kind: KindSubscribe, Name: req.Name}
	case KindUnsubscribe:
		s.pruneSubscriber([]string{req.Name}, req.SubscriberRef)
		return &Response{Kind: KindUnsubscribe}
	default:
		return &Response{Kind: req.Kind, Error: "unknown message kind"}
	}
}

func (s *Server) handleRegister(req Request) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[req.Name]
	if !ok {
		b = circuitbreaker.New(circuitbreaker.Config{
			ErrorThreshold:   req.ErrorThreshold,
			ErrorTimeout:     time.Duration(req.ErrorTimeout) * time.Millisecond,
			SuccessThreshold: req.SuccessThreshold,
			ResourceName:     req.Name,
		})
		s.breakers[req.Name] = b
	}
	return &Response{Kind: KindRegisterResource, Registered: true, State: b.State().String()}
}

func (s *Server) handleReportError(req Request) *Response {
	b := s.breakerFor(req.Name)
	if b == nil {
		return &Response{Kind: KindReportError, Error: "resource not registered"}
	}
	before := b.State()
	b.RecordFailure(errReported{})
	if b.State() != before {
		s.broadcast(req.Name, b.State().String())
	}
	return &Response{Kind: KindReportError, State: b.State().String()}
}

func (s *Server) handleReportSuccess(req Request) *Response {
	b := s.breakerFor(req.Name)
	if b == nil {
		return &Response{Kind: KindReportSuccess, Error: "resource not registered"}
	}
	before := b.State()
	b.RecordSuccess()
	if b.State() != before {
		s.broadcast(req.Name, b.State().String())
	}
	return &Response{Kind: KindReportSuccess, State: b.State().String()}
}

func (s *Server) handleGetState(req Request) *Response {
	b := s.breakerFor(req.Name)
	if b == nil {
		return &Response{Kind: KindGetState, Error: "resource not registered"}
	}
	return &Response{Kind: KindGetState, State: b.State().String()}
}

// handleAllowRequest delegates the admission decision to the registered
// resource's own breaker, so the half-open admission semantics stay
// exactly where the classical breaker already implements them instead of
// being reconstructed from cached state on the client side.
func (s *Server) handleAllowRequest(req Request) *Response {
	b := s.breakerFor(req.Name)
	if b == nil {
		return &Response{Kind: KindAllowRequest, Error: "resource not registered"}
	}

	before := b.State()
	allowed, err := b.AllowRequest()
	if b.State() != before {
		s.broadcast(req.Name, b.State().String())
	}

	resp := &Response{Kind: KindAllowRequest, Allowed: allowed, State: b.State().String()}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) handleReset(req Request) *Response {
	b := s.breakerFor(req.Name)
	if b == nil {
		return &Response{Kind: KindReset, Error: "resource not registered"}
	}
	before := b.State()
	b.Reset()
	if b.State() != before {
		s.broadcast(req.Name, b.State().String())
	}
	return &Response{Kind: KindReset, State: b.State().String()}
}

func (s *Server) handleGetOpenStates() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]string)
	for name, b := range s.breakers {
		if st := b.State(); st != circuitbreaker.Closed {
			states[name] = st.String()
		}
	}
	return &Response{Kind: KindGetOpenStates, States: states}
}

func (s *Server) handleSubscribe(req Request, conn net.Conn, enc *json.Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[req.Name] = append(s.subscribers[req.Name], &subscriberConn{ref: req.SubscriberRef, conn: conn, enc: enc})
}

func (s *Server) pruneSubscriber(names []string, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		subs := s.subscribers[name]
		filtered := subs[:0]
		for _, sub := range subs {
			if sub.ref != ref {
				filtered = append(filtered, sub)
			}
		}
		s.subscribers[name] = filtered
	}
}

// broadcast pushes an on_state_change event to every subscriber of name,
// pruning any connection whose write fails (dead-subscriber pruning).
func (s *Server) broadcast(name, state string) {
	s.mu.Lock()
	subs := append([]*subscriberConn(nil), s.subscribers[name]...)
	s.mu.Unlock()

	var dead []string
	for _, sub := range subs {
		sub.mu.Lock()
		err := sub.enc.Encode(Response{Kind: KindOnStateChange, Name: name, State: state})
		sub.mu.Unlock()
		if err != nil {
			dead = append(dead, sub.ref)
		}
	}
	if len(dead) > 0 {
		s.mu.Lock()
		for _, ref := range dead {
			subs := s.subscribers[name]
			filtered := subs[:0]
			for _, sub := range subs {
				if sub.ref != ref {
					filtered = append(filtered, sub)
				}
			}
			s.subscribers[name] = filtered
		}
		s.mu.Unlock()
	}
}

func (s *Server) breakerFor(name string) *circuitbreaker.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakers[name]
}

// errReported is a placeholder error representing a remotely-observed
// failure; report_error carries only a timestamp, not the original error
// value, since it crosses a process boundary.
type errReported struct{}

func (errReported) Error() string { return "reported error" }
