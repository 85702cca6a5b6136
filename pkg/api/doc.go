// Package api defines the OpenAI-compatible wire types served by the
// gateway: the chat-completion request body, the buffered and streamed
// response shapes, the error envelope, and completion ID generation.
//
// Provider packages never import api; they operate on the canonical types
// in pkg/provider. The gateway translates between the two.
package api
