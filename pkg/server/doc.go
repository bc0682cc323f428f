// Package server runs live search sessions over WebSocket.
//
// A browser page opens a WebSocket to the server and sends a handshake
// frame naming the page it shows. The server answers with a welcome frame
// and creates a Session, which owns a search.Synchronizer and one event
// loop goroutine. Input frames are queued onto that loop; when the user
// stops typing for the quiet period the synchronizer settles and the
// session sends a navigate frame, which the client applies as a history
// push.
//
// # Session lifecycle
//
//	handshake → welcome → mount settle → input… → settle → navigate …
//
// When a connection closes, the session's visible text and location are
// saved to a session.Store for the resume window. A handshake that carries
// the old session id resumes it.
//
// # Limits
//
// MaxSessions bounds concurrent sessions; extra clients receive a fatal
// session_limit error frame. MaxMessageSize bounds each frame; the event
// queue is bounded and overflow is reported with a rate_limited error
// frame. Sessions without input for IdleTimeout are closed by the
// manager's cleanup loop.
package server
