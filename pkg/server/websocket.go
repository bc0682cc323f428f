package server

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/storefront/pkg/protocol"
	"github.com/vango-dev/storefront/pkg/routepath"
	"github.com/vango-dev/storefront/pkg/urlparam"
)

// ReadLoop reads frames from the client until the connection fails or the
// session closes. It closes the session on return.
func (s *Session) ReadLoop() {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.closed.Load() {
				s.logger.Debug("read error", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.metrics.FrameErrors.WithLabelValues("text_message").Inc()
			continue
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			s.metrics.FrameErrors.WithLabelValues("decode").Inc()
			s.logger.Debug("bad frame", "error", err)
			s.sendError(protocol.ErrBadFrame, err.Error(), false)
			continue
		}
		s.metrics.Frames.WithLabelValues(frame.Type.String()).Inc()

		if !s.handleFrame(frame) {
			return
		}
	}
}

// handleFrame handles one decoded frame. It returns false when the client
// asked to close.
func (s *Session) handleFrame(frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.FrameInput:
		var in protocol.Input
		if err := protocol.Unmarshal(frame, &in); err != nil {
			s.rejectFrame("payload", err)
			return true
		}
		s.touch()
		s.queue(func() {
			s.search.Input(in.Value)
		})

	case protocol.FrameLocation:
		var loc protocol.Location
		if err := protocol.Unmarshal(frame, &loc); err != nil {
			s.rejectFrame("payload", err)
			return true
		}
		path, err := routepath.Clean(loc.Path)
		if err != nil {
			s.rejectFrame("path", err)
			return true
		}
		s.touch()
		s.queue(func() {
			params := urlparam.Parse(loc.Query)
			s.setLocation(params.WithPath(path))
			s.search.SetLocation(params)
		})

	case protocol.FrameControl:
		var ctrl protocol.Control
		if err := protocol.Unmarshal(frame, &ctrl); err != nil {
			s.rejectFrame("payload", err)
			return true
		}
		switch ctrl.Type {
		case protocol.ControlPing:
			if err := s.send(protocol.FrameControl, &protocol.Control{Type: protocol.ControlPong, Timestamp: ctrl.Timestamp}); err != nil {
				s.logger.Debug("pong failed", "error", err)
			}
		case protocol.ControlPong:
			// The read deadline was already extended.
		case protocol.ControlClose:
			s.logger.Debug("client closed session", "reason", ctrl.Reason)
			return false
		}

	default:
		s.metrics.FrameErrors.WithLabelValues("unexpected_type").Inc()
		s.sendError(protocol.ErrBadFrame, "unexpected frame type "+frame.Type.String(), false)
	}
	return true
}

func (s *Session) queue(fn func()) {
	if err := s.QueueEvent(fn); err != nil {
		if errors.Is(err, ErrEventQueueFull) {
			s.metrics.FrameErrors.WithLabelValues("queue_full").Inc()
			s.sendError(protocol.ErrRateLimited, "too many events", false)
		}
	}
}

func (s *Session) rejectFrame(reason string, err error) {
	s.metrics.FrameErrors.WithLabelValues(reason).Inc()
	s.sendError(protocol.ErrBadFrame, err.Error(), false)
}

// heartbeatLoop pings the client so that idle but healthy connections keep
// extending their read deadline.
func (s *Session) heartbeatLoop() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			ping := &protocol.Control{Type: protocol.ControlPing, Timestamp: s.clock.Now().UnixMilli()}
			if err := s.send(protocol.FrameControl, ping); err != nil {
				s.logger.Debug("heartbeat failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// send encodes msg as a frame of type ft and writes it.
func (s *Session) send(ft protocol.FrameType, msg any) error {
	data, err := protocol.Marshal(ft, msg)
	if err != nil {
		return err
	}
	return s.sendFrame(data)
}

// sendFrame writes one binary message. Writes are serialized.
func (s *Session) sendFrame(data []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Session) sendError(code protocol.ErrorCode, message string, fatal bool) {
	if err := s.send(protocol.FrameError, &protocol.Error{Code: code, Message: message, Fatal: fatal}); err != nil {
		s.logger.Debug("error frame not delivered", "code", code, "error", err)
	}
}

// writeError sends an error frame on a connection that has no session yet.
func writeError(conn *websocket.Conn, timeout time.Duration, code protocol.ErrorCode, message string) error {
	data, err := protocol.Marshal(protocol.FrameError, &protocol.Error{Code: code, Message: message, Fatal: true})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(code)),
		time.Now().Add(timeout))
}

// readHandshake reads the first frame, which must be a handshake.
func readHandshake(conn *websocket.Conn, timeout time.Duration) (*protocol.Handshake, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, ErrInvalidHandshake
	}
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		return nil, errors.Join(ErrInvalidHandshake, err)
	}
	if frame.Type != protocol.FrameHandshake {
		return nil, ErrInvalidHandshake
	}
	var hs protocol.Handshake
	if err := protocol.Unmarshal(frame, &hs); err != nil {
		return nil, errors.Join(ErrInvalidHandshake, err)
	}
	path, err := routepath.Clean(hs.Path)
	if err != nil {
		return nil, errors.Join(ErrInvalidHandshake, err)
	}
	hs.Path = path
	return &hs, nil
}
