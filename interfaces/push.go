package interfaces

import "context"

// PushGateway submits push messages to an external messaging service.
//
// Send returns an error only when the submission itself fails (network,
// authentication). Per-recipient failures are reported in the BatchResult.
type PushGateway interface {
	Send(ctx context.Context, messages []PushMessage) (*BatchResult, error)
}
