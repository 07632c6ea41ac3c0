package mqtt

import (
	"context"

	"github.com/kilianp07/planboard/core/events"
)

// Publisher forwards gate-closure signals and document status changes to
// external bidding and validation collaborators.
type Publisher interface {
	// PublishSignal sends a scheduler signal and returns the message
	// identifier used on the wire.
	PublishSignal(ctx context.Context, sig events.Signal) (messageID string, err error)

	// PublishDocumentEvent sends a document status change.
	PublishDocumentEvent(ctx context.Context, ev events.DocumentEvent) (messageID string, err error)
}
