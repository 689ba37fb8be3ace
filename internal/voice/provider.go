package voice

import "context"

// Provider turns order facts into a spoken confirmation script plus
// synthesized audio. Implementations are provider adapters; business logic
// must not depend on which vendor sits behind this interface.
type Provider interface {
	GenerateScriptAndAudio(ctx context.Context, req ScriptRequest, voiceID string) (Script, error)
}

// ScriptRequest carries the order facts spoken to the customer.
type ScriptRequest struct {
	CustomerName string
	OrderID      string // the customer-facing order number
	TotalMinor   int64
	Currency     string
	Items        []ScriptItem
	Language     string
}

type ScriptItem struct {
	Name     string
	Quantity int
}

type Script struct {
	Text  string
	Audio []byte
}
