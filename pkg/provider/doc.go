// Package provider defines the vendor-neutral contract all chat-completion
// backends implement: the canonical request and message types, the bound
// Model, the client configuration shape, and the Handler that normalizes
// vendor streaming chunks into one canonical event sequence.
//
// Each vendor lives in its own subpackage (openai, claude, gemini, ...) and
// translates the canonical types to and from its own wire format. The
// gateway and the streaming normalizer never see vendor-specific shapes.
package provider
