// Package server provides the HTTP API of chatsync.
//
// The server is a chi router over a session.Service:
//
//   - POST /chat runs one exchange and streams its updates as wire frames
//   - GET /chat/{id}, GET /chats and DELETE /chat/{id} serve stored chats
//   - GET /chat/{id}/events streams the updates of other requests live,
//     as wire frames or over a WebSocket
//   - GET /models lists the model catalog
//   - GET /audio/{id} serves synthesized speech
//   - /mcp/search is the built-in MCP tool server
//   - GET /metrics and GET /health are for operators
//
// Errors are JSON bodies of the form {"error":{"code":...,"message":...}}.
// A chat request is validated completely before the first frame, so a
// request error never follows a 200 status.
package server
