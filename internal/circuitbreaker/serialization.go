package circuitbreaker

import (
	"encoding/json"
	"fmt"
	"time"
)

// snapshotJSON is the wire representation of Snapshot, used for Redis
// mirroring.
type snapshotJSON struct {
	ResourceName    string `json:"resource_name"`
	State           string `json:"state"`
	ErrorCount      int    `json:"error_count"`
	LastStateChange string `json:"last_state_change"`
	Version         int64  `json:"version"`
}

// MarshalSnapshot serializes a Snapshot to JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(snapshotJSON{
		ResourceName:    s.ResourceName,
		State:           s.State.String(),
		ErrorCount:      s.ErrorCount,
		LastStateChange: s.LastStateChange.Format(time.RFC3339Nano),
		Version:         s.Version,
	})
}

// UnmarshalSnapshot deserializes a Snapshot from JSON.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var js snapshotJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal circuit snapshot: %w", err)
	}

	state, err := ParseState(js.State)
	if err != nil {
		return Snapshot{}, err
	}

	lastChange, err := time.Parse(time.RFC3339Nano, js.LastStateChange)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse last_state_change: %w", err)
	}

	return Snapshot{
		ResourceName:    js.ResourceName,
		State:           state,
		ErrorCount:      js.ErrorCount,
		LastStateChange: lastChange,
		Version:         js.Version,
	}, nil
}

// ParseState parses a circuit state's string form, as produced by
// State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "closed":
		return Closed, nil
	case "open":
		return Open, nil
	case "half_open":
		return HalfOpen, nil
	default:
		return 0, fmt.Errorf("unknown circuit state: %s", s)
	}
}

// StateStore persists circuit breaker snapshots, implemented by the Redis
// client for optional degraded-mode mirroring of non-closed states.
type StateStore interface {
	Save(snapshot Snapshot) error
	Load(resourceName string) (Snapshot, error)
	Delete(resourceName string) error
}
