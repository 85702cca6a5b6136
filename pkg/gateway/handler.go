package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/polygate-dev/polygate/pkg/abort"
	"github.com/polygate-dev/polygate/pkg/api"
	"github.com/polygate-dev/polygate/pkg/config"
	"github.com/polygate-dev/polygate/pkg/observability"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/factory"
	"github.com/polygate-dev/polygate/pkg/usage"
)

// maxBodySize bounds the inbound request body.
const maxBodySize = 10 << 20

// defaultModelName is the alias clients send to select the configured
// default model.
const defaultModelName = "default"

// clientBuilder constructs a provider client; tests substitute a stub.
type clientBuilder func(provider.ClientConfig, provider.Model) (provider.Client, error)

// Gateway serves the OpenAI-compatible surface over the configured
// provider clients.
type Gateway struct {
	cfg       *config.Config
	store     usage.Store
	newClient clientBuilder
	logger    *slog.Logger
}

// New creates a Gateway. store may be nil to disable the usage ledger.
func New(cfg *config.Config, store usage.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:       cfg,
		store:     store,
		newClient: factory.New,
		logger:    logger,
	}
}

// Routes registers the gateway endpoints on a fresh mux. Unmatched paths
// fall through to the 404 envelope.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("GET /v1/usage", g.handleUsage)
	mux.HandleFunc("GET /healthz", g.handleHealthz)
	mux.HandleFunc("/", g.handleNotFound)
	return mux
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, api.NewNotFoundError("The requested endpoint was not found."))
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		writeError(w, api.NewNotFoundError("usage ledger is not enabled"))
		return
	}
	records, err := g.store.List(r.Context(), 0)
	if err != nil {
		g.logger.Error("listing usage records", "error", err.Error())
		writeError(w, api.NewServerError("failed to list usage records"))
		return
	}
	if records == nil {
		records = []usage.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": records})
}

// resolve maps the requested model name onto a client config and a
// request-scoped model copy. "default", an empty name, and the literal
// default model id all select the configured default without a lookup.
func (g *Gateway) resolve(name string) (provider.ClientConfig, provider.Model, error) {
	defaultID := g.cfg.DefaultModelID()
	if name == "" || name == defaultModelName || name == defaultID {
		return g.cfg.ResolveModel(defaultID)
	}
	cc, model, err := g.cfg.ResolveModel(name)
	if err != nil {
		return provider.ClientConfig{}, provider.Model{}, api.NewModelNotFoundError(name)
	}
	return cc, model, nil
}

func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, api.NewInvalidRequestError("", "could not parse request body: "+err.Error()))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, api.NewInvalidRequestError("messages", "messages must not be empty"))
		return
	}

	cc, model, err := g.resolve(req.Model)
	if err != nil {
		writeError(w, asAPIError(err))
		return
	}

	// The override lives on the request-scoped copy only.
	if req.MaxTokens != nil {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	client, err := g.newClient(cc, model)
	if err != nil {
		writeError(w, api.NewConfigError(err.Error()))
		return
	}

	preq := provider.Request{
		Messages:    make([]provider.Message, len(req.Messages)),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	for i, m := range req.Messages {
		preq.Messages[i] = provider.Message{Role: m.Role, Content: m.Content}
	}

	if req.Stream {
		g.streamCompletion(w, r, client, model, preq)
		return
	}
	g.syncCompletion(w, r, client, model, preq)
}

func (g *Gateway) syncCompletion(w http.ResponseWriter, r *http.Request, client provider.Client, model provider.Model, preq provider.Request) {
	start := time.Now()
	text, details, err := client.Send(r.Context(), preq)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing to report.
			return
		}
		observability.RecordProviderCall(model.Client, model.Name, "error", time.Since(start).Seconds(), 0, 0)
		g.logger.Error("completion failed",
			"client", model.Client,
			"model", model.Name,
			"error", err.Error(),
		)
		writeError(w, asAPIError(err))
		return
	}
	observability.RecordProviderCall(model.Client, model.Name, "ok", time.Since(start).Seconds(), details.InputTokens, details.OutputTokens)

	id := details.ID
	if id == "" {
		id = api.NewCompletionID()
	}
	created := time.Now().Unix()

	g.recordUsage(r.Context(), id, model, details, false)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.ChatCompletion{
		ID:      id,
		Object:  api.ObjectChatCompletion,
		Created: created,
		Model:   model.ID(),
		Choices: []api.ChatCompletionChoice{{
			Index:        0,
			Message:      api.ChatMessage{Role: api.RoleAssistant, Content: text},
			FinishReason: api.FinishReasonStop,
		}},
		Usage: api.Usage{
			PromptTokens:     details.InputTokens,
			CompletionTokens: details.OutputTokens,
			TotalTokens:      details.InputTokens + details.OutputTokens,
		},
	})
}

// streamCompletion relays the normalized event sequence as OpenAI SSE
// frames. The response status is withheld until the provider produces its
// first event, so upstream failures before any output still map to a
// clean JSON error.
func (g *Gateway) streamCompletion(w http.ResponseWriter, r *http.Request, client provider.Client, model provider.Model, preq provider.Request) {
	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	sig := abort.New()
	h := provider.NewHandler(sig)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A dropped connection aborts the upstream read loop.
	go func() {
		<-ctx.Done()
		sig.Set()
	}()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.SendStreaming(ctx, preq, h)
	}()

	fw := newFrameWriter(w, api.NewCompletionID(), model.ID(), time.Now().Unix())

	var sendErr error
	var sendDone bool

	// First-event handshake.
	var first provider.Event
	var ok bool
	select {
	case first, ok = <-h.Events():
	case sendErr = <-errCh:
		sendDone = true
		// The stream may have buffered events before failing; surface
		// the error only if nothing was produced.
		select {
		case first, ok = <-h.Events():
		default:
		}
	}

	if !ok && sendErr != nil {
		observability.RecordProviderCall(model.Client, model.Name, "error", time.Since(start).Seconds(), 0, 0)
		g.logger.Error("stream failed before first event",
			"client", model.Client,
			"model", model.Name,
			"error", sendErr.Error(),
		)
		writeError(w, asAPIError(sendErr))
		return
	}
	if !ok {
		// Closed without events and without error: empty completion.
		fw.begin()
		fw.role()
		fw.finish()
		g.finishStream(r, fw, model, start, sendDone, errCh)
		return
	}

	fw.begin()
	if err := fw.role(); err != nil {
		sig.Set()
		return
	}

	event := first
	for {
		if event.Done {
			break
		}
		if err := fw.text(event.Text); err != nil {
			// Client went away mid-stream.
			sig.Set()
			return
		}

		// The event channel stays open when the stream fails, so once
		// the provider call has returned only buffered events remain.
		var open bool
		if sendDone {
			select {
			case event, open = <-h.Events():
			default:
			}
		} else {
			select {
			case event, open = <-h.Events():
			case sendErr = <-errCh:
				sendDone = true
				select {
				case event, open = <-h.Events():
				default:
				}
			}
		}
		if !open {
			// The stream failed mid-flight. The connection is cut
			// without the finish frames so the client can tell it
			// was truncated.
			observability.RecordProviderCall(model.Client, model.Name, "error", time.Since(start).Seconds(), 0, 0)
			if sendErr != nil {
				g.logger.Error("stream terminated",
					"client", model.Client,
					"model", model.Name,
					"error", sendErr.Error(),
				)
			}
			return
		}
	}

	if err := fw.finish(); err != nil {
		sig.Set()
		return
	}
	g.finishStream(r, fw, model, start, sendDone, errCh)
}

// finishStream waits for the provider goroutine, records metrics and the
// usage ledger entry for a cleanly finished stream.
func (g *Gateway) finishStream(r *http.Request, fw *frameWriter, model provider.Model, start time.Time, sendDone bool, errCh chan error) {
	var err error
	if !sendDone {
		err = <-errCh
	}
	if err != nil {
		g.logger.Warn("stream closed with error after completion",
			"client", model.Client,
			"model", model.Name,
			"error", err.Error(),
		)
	}

	// Streamed vendors rarely report usage through this path; counts
	// default to zero.
	observability.RecordProviderCall(model.Client, model.Name, "ok", time.Since(start).Seconds(), 0, 0)
	g.recordUsage(r.Context(), fw.id, model, provider.Details{}, true)
}

func (g *Gateway) recordUsage(ctx context.Context, id string, model provider.Model, details provider.Details, stream bool) {
	if g.store == nil {
		return
	}
	rec := usage.Record{
		ID:           id,
		Model:        model.ID(),
		InputTokens:  details.InputTokens,
		OutputTokens: details.OutputTokens,
		Stream:       stream,
		CreatedAt:    time.Now().UTC(),
	}
	// Ledger writes must not fail the completion; use a detached context
	// so a dropped client connection does not lose the record.
	if err := g.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.Error("saving usage record", "id", id, "error", err.Error())
	}
}
