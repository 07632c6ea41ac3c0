package model

import (
	"errors"
	"strings"
)

var (
	// ErrConfiguration signals an invalid PTU duration, time zone or other
	// static setting. It is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnknownConversation is returned when a response has no matching
	// prior outbound document.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrDuplicateMessageID is returned on replayed or duplicated documents.
	ErrDuplicateMessageID = errors.New("duplicate message id")
	// ErrInvalidPhaseTransition is returned for forbidden status changes and
	// for changes touching PTUs that are already operational.
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	// ErrSettlementInputMissing aborts the settlement of a single order.
	ErrSettlementInputMissing = errors.New("settlement input missing")
	// ErrNotFound is returned by stores for unknown documents.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDocument is returned for documents missing mandatory fields
	// or carrying PTU indices outside their period.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrAlreadySettled is returned when a settlement for the same flex
	// order and period is already persisted.
	ErrAlreadySettled = errors.New("already settled")
)

// Reason returns the human readable rejection text sent back to the
// protocol layer. Only the outermost message is kept.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
