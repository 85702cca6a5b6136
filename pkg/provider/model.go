package provider

import "strings"

// Model identifies a concrete (client, model name) pair and its runtime
// limits. MaxOutputTokens may be overridden per request; the override lives
// only in the request-scoped copy and never persists.
type Model struct {
	Client          string
	Name            string
	MaxInputTokens  *int
	MaxOutputTokens *int
}

// NewModel creates a Model bound to the given client instance name.
func NewModel(client, name string) Model {
	return Model{Client: client, Name: name}
}

// ID returns the full model identifier in "client:name" form.
func (m Model) ID() string {
	if m.Client == "" {
		return m.Name
	}
	return m.Client + ":" + m.Name
}

// Clone returns a deep copy of the model, so request-scoped overrides do
// not leak into the shared configuration.
func (m Model) Clone() Model {
	out := m
	if m.MaxInputTokens != nil {
		v := *m.MaxInputTokens
		out.MaxInputTokens = &v
	}
	if m.MaxOutputTokens != nil {
		v := *m.MaxOutputTokens
		out.MaxOutputTokens = &v
	}
	return out
}

// SetMaxOutputTokens overrides the output token cap on this copy.
// Passing nil clears the cap.
func (m *Model) SetMaxOutputTokens(v *int) {
	if v == nil {
		m.MaxOutputTokens = nil
		return
	}
	n := *v
	m.MaxOutputTokens = &n
}

// SplitID splits a full model identifier into client and model name.
// An identifier without a colon is a bare model name with no client part.
func SplitID(id string) (client, name string) {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}
