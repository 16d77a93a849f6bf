// Package sharedscope implements an optional shared-scope RPC: a
// unix-domain-socket coordinator that lets multiple processes observe and
// drive the same classical circuit breaker state machine, so a breaker
// configured with sync_scope: shared behaves identically from the
// caller's perspective while its state lives in one coordinator process
// instead of being duplicated per-process.
package sharedscope

import "time"

// MessageKind enumerates the RPC verbs.
type MessageKind string

const (
	KindRegisterResource MessageKind = "register_resource"
	KindReportError      MessageKind = "report_error"
	KindReportSuccess    MessageKind = "report_success"
	KindGetState         MessageKind = "get_state"
	KindGetOpenStates    MessageKind = "get_open_states"
	KindAllowRequest     MessageKind = "allow_request"
	KindReset            MessageKind = "reset"
	KindSubscribe        MessageKind = "subscribe"
	KindUnsubscribe      MessageKind = "unsubscribe"
	KindOnStateChange    MessageKind = "on_state_change"
)

// Request is one client->server RPC call, JSON-line encoded over the
// unix socket connection.
type Request struct {
	Kind             MessageKind `json:"kind"`
	Name             string      `json:"name,omitempty"`
	ErrorThreshold   int         `json:"error_threshold,omitempty"`
	ErrorTimeout     int64       `json:"error_timeout_ms,omitempty"`
	SuccessThreshold int         `json:"success_threshold,omitempty"`
	Timestamp        time.Time   `json:"timestamp,omitempty"`
	SubscriberRef    string      `json:"subscriber_ref,omitempty"`
}

// Response is the server's reply to a Request, or an unprompted broadcast
// (Kind == KindOnStateChange) pushed to a subscribed connection.
type Response struct {
	Kind       MessageKind       `json:"kind"`
	Registered bool              `json:"registered,omitempty"`
	Allowed    bool              `json:"allowed,omitempty"`
	State      string            `json:"state,omitempty"`
	States     map[string]string `json:"states,omitempty"`
	Name       string            `json:"name,omitempty"`
	Error      string            `json:"error,omitempty"`
}
