package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake is the first frame a client sends.
type Handshake struct {
	// Path is the page path, e.g. "/search".
	Path string `json:"path"`

	// Query is the raw query string of the page, without '?'.
	Query string `json:"query"`

	// Session is a previous session id to resume, if any.
	Session string `json:"session,omitempty"`

	// CSRF is the token rendered into the page.
	CSRF string `json:"csrf,omitempty"`
}

// Input carries the current text of the search box.
type Input struct {
	Value string `json:"value"`
}

// Location reports the browser location after a history traversal.
type Location struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

// Welcome answers a successful handshake.
type Welcome struct {
	Session string `json:"session"`

	// Value is the text the search box should show; it differs from the
	// page's `q` only when a resumed session had unsettled input.
	Value string `json:"value"`

	// Resumed is true when Session was restored from a previous connection.
	Resumed bool `json:"resumed,omitempty"`
}

// Navigate asks the client to navigate to URL.
type Navigate struct {
	URL string `json:"url"`
}

// ErrorCode classifies an error frame.
type ErrorCode string

const (
	ErrBadHandshake  ErrorCode = "bad_handshake"
	ErrBadFrame      ErrorCode = "bad_frame"
	ErrSessionLimit  ErrorCode = "session_limit"
	ErrRateLimited   ErrorCode = "rate_limited"
	ErrInvalidCSRF   ErrorCode = "invalid_csrf"
	ErrServerClosing ErrorCode = "server_closing"
)

// Error is sent to the client before the server gives up on a frame or a
// connection.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Fatal means the server will close the connection.
	Fatal bool `json:"fatal,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %s: %s", e.Code, e.Message)
}

// ControlType identifies a control message.
type ControlType string

const (
	ControlPing  ControlType = "ping"
	ControlPong  ControlType = "pong"
	ControlClose ControlType = "close"
)

// Control is a keep-alive or shutdown message.
type Control struct {
	Type ControlType `json:"type"`

	// Timestamp echoes between ping and pong, in Unix milliseconds.
	Timestamp int64 `json:"ts,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// Marshal encodes msg as the payload of a frame of type ft.
func Marshal(ft FrameType, msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", ft, err)
	}
	return NewFrame(ft, payload).Encode()
}

// Unmarshal decodes a frame payload into msg.
func Unmarshal(f *Frame, msg any) error {
	if err := json.Unmarshal(f.Payload, msg); err != nil {
		return fmt.Errorf("protocol: decode %s: %w", f.Type, err)
	}
	return nil
}

// MarshalNavigate encodes a navigate frame. Replace sets FlagReplace.
func MarshalNavigate(url string, replace bool) ([]byte, error) {
	payload, err := json.Marshal(Navigate{URL: url})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", FrameNavigate, err)
	}
	f := NewFrame(FrameNavigate, payload)
	if replace {
		f.Flags |= FlagReplace
	}
	return f.Encode()
}
