// Package api provides the JSON REST API of the iECHO chatbot backend.
//
// # Architecture
//
// The server uses Go 1.22+ method routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// The liveness probe bypasses the stack via a top-level mux so it stays
// fast and unthrottled.
//
// # Endpoints
//
// Liveness (no middleware):
//   - GET /health: returns {"status":"healthy","service":...,"timestamp":...}
//
// Chat:
//   - POST /chat: buffered chat turn (JSON request/response)
//   - POST /chat-stream: streaming chat turn (NDJSON frames)
//
// Feedback:
//   - POST /feedback: rate a previous response (1..5)
//
// Operational:
//   - GET /status: configuration summary for dashboards
//
// Documents:
//   - GET /documents: list processed knowledge-base documents
//   - GET /document-url/{path...}: presigned download URL for s3://bucket/key
//
// # Error Handling
//
// Non-streaming failures use the envelope {"detail": <message>}; image
// validation failures additionally carry a stable "code" field
// (IMAGE_TOO_LARGE, IMAGE_DECODE_ERROR) so clients can branch without
// parsing text.
//
// # NDJSON Streaming
//
// POST /chat-stream answers with Content-Type application/x-ndjson, one
// JSON frame per line:
//
//   - {"type":"thinking_start"}      reasoning span opened
//   - {"type":"thinking","data":…}   reasoning text
//   - {"type":"thinking_end"}        reasoning span closed
//   - {"type":"content","data":…}    answer text, in order, concatenable
//   - {"type":"error","data":…}      terminal failure frame
//   - bare response object           terminal success frame
//
// Exactly one terminal frame ends every stream. Validation failures are
// reported in-stream as an error frame, not as an HTTP status, because
// the stream is established before the request body is inspected. Client
// disconnects cancel the in-flight turn through the request context.
//
// # Security
//
// The middleware stack enforces:
//   - per-IP rate limiting (token bucket, refill 1/s)
//   - CORS (wildcard by default, matching the public deployment)
//   - security headers (nosniff, frame deny, referrer policy, CSP)
package api
