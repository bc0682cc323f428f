package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentStateVersion is the current version of the State encoding.
// Increment when making breaking changes to the format.
const CurrentStateVersion = 1

// State is the persisted part of a live search session.
type State struct {
	// Text is the visible search box text, possibly not yet settled.
	Text string `json:"text"`

	// Path and Query locate the page as of the last navigation.
	Path  string `json:"path"`
	Query string `json:"query,omitempty"`

	// SavedAt is when the state was captured.
	SavedAt time.Time `json:"saved_at"`

	Version int `json:"version"`
}

// Encode converts a State to bytes.
func (s *State) Encode() ([]byte, error) {
	s.Version = CurrentStateVersion
	return json.Marshal(s)
}

// DecodeState converts bytes back to a State.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode state: %w", err)
	}
	if s.Version > CurrentStateVersion {
		return nil, fmt.Errorf("session: state version %d is newer than %d", s.Version, CurrentStateVersion)
	}
	return &s, nil
}
