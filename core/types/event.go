package types

// Event represents a typed event emitted during state transitions. Amounts are
// rendered as base-10 strings so consumers never lose precision.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
