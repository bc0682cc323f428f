// Package protocol implements the wire format spoken between the storefront's
// thin browser client and a live session.
//
// # Wire Format
//
// Every WebSocket binary message carries exactly one frame with a 4-byte
// header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (2 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// Payloads are small JSON documents. The header is decoded first so an
// oversized or unknown frame is rejected before any JSON is parsed.
//
// # Frame Types
//
//   - FrameHandshake (0x00): client → server, page path and query, resume id
//   - FrameInput (0x01): client → server, current text of the search box
//   - FrameNavigate (0x02): server → client, path-plus-query to visit
//   - FrameControl (0x03): ping, pong and close, both directions
//   - FrameWelcome (0x04): server → client, session id and restored text
//   - FrameError (0x05): server → client, error code and message
//   - FrameLocation (0x06): client → server, location after back/forward
package protocol
