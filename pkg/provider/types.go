package provider

import "context"

// Message is one canonical conversation turn. Role is one of "system",
// "user", or "assistant"; ordering is request order and messages are
// never mutated after construction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the canonical completion request handed to every client.
// Temperature and TopP are optional; each client validates them against
// its own vendor limits rather than a global range.
type Request struct {
	Messages    []Message
	Temperature *float64
	TopP        *float64
	Stream      bool
}

// Details carries post-hoc metadata of a finished completion. The upstream
// completion ID is empty when the vendor does not supply one; token counts
// are zero when the vendor does not report usage. For streams, Details is
// only fully known once the stream ends.
type Details struct {
	ID           string
	InputTokens  int
	OutputTokens int
}

// Client is the contract implemented once per vendor. A Client is bound to
// a single request-scoped Model copy; implementations are cheap to build
// and are constructed per request by the gateway.
type Client interface {
	// Name returns the vendor identifier, e.g. "openai" or "claude".
	Name() string

	// Model returns the bound model. The pointer is request-scoped:
	// mutating it (for a per-request max-output-token override) never
	// affects other requests.
	Model() *Model

	// Send performs one blocking round trip: serialize the canonical
	// request into the vendor schema, call the vendor, and extract the
	// answer text plus usage details. Non-2xx statuses and vendor error
	// envelopes surface as errors carrying the vendor's message.
	Send(ctx context.Context, req Request) (string, Details, error)

	// SendStreaming issues the vendor's streaming call and feeds every
	// incremental chunk through the Handler as it arrives. It returns
	// once the upstream stream closes or errors, and must stop reading
	// promptly when the Handler's abort signal is set. An aborted stream
	// is not an error.
	SendStreaming(ctx context.Context, req Request, h *Handler) error
}
