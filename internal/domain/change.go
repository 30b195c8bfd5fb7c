package domain

import "time"

// Change is one per-field difference. From and To hold normalized values:
// nil for empty, otherwise the field's canonical string form.
type Change struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// EditRecord is appended on every authorized post-creation mutation. It is
// distinct from a document's one-time DiffFromParent.
type EditRecord struct {
	Editor    string    `json:"editor"`
	Timestamp time.Time `json:"timestamp"`
	Changes   []Change  `json:"changes"`
}
