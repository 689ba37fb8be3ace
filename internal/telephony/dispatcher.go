package telephony

import "context"

// Dispatcher places outbound calls at a telephony provider.
//
// Rules:
// - No provider SDK/REST calls outside telephony adapters.
// - Keep request/response types provider-agnostic; raw provider payloads are
//   returned in DispatchResult.Raw and stored on the call record as metadata.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// DispatchRequest hands synthesized audio to the provider.
type DispatchRequest struct {
	// PhoneNumber is the destination, E.164.
	PhoneNumber string

	// Audio is the synthesized MP3 payload to play to the customer.
	Audio []byte

	// CorrelationID is the internal call record id; the provider-facing
	// TwiML/audio URLs embed it.
	CorrelationID string
}

// DispatchResult reports whether the provider accepted the call attempt.
// A rejection is a result, not an error; errors are reserved for transport
// failures (timeouts, connectivity), which callers treat the same way.
type DispatchResult struct {
	Accepted bool

	// ExternalCallID is the provider-assigned identifier, set only when
	// accepted. Delivery-status events reference it.
	ExternalCallID string

	// Raw is the provider response payload, retained for audit/debug.
	Raw map[string]any
}

// DeliveryEvent is a provider-agnostic delivery-status callback.
type DeliveryEvent struct {
	Status   string
	Duration int

	// Raw is the full callback payload.
	Raw map[string]string
}
