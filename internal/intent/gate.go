package intent

import (
	"errors"
	"time"

	"invoicechat/internal/conversation"
	"invoicechat/pkg/models"
)

// DefaultFreshnessWindow is how long after a create or edit a free-text edit
// still targets that invoice.
const DefaultFreshnessWindow = 10 * time.Minute

var (
	// ErrNoActiveInvoice is returned when an edit has no invoice to target.
	ErrNoActiveInvoice = errors.New("no active invoice to edit, create an invoice first")

	// ErrInvoiceTooOld is returned when the last invoice action is outside
	// the freshness window.
	ErrInvoiceTooOld = errors.New("the last invoice is too old to edit from chat, create a new one or view it again")
)

// Gate returns the invoice an Edit should target.
func Gate(st *conversation.State, now time.Time, window time.Duration) (*models.InvoiceRecord, error) {
	if st == nil || st.LastCreatedInvoice == nil || st.LastCreatedInvoice.ID == "" {
		return nil, ErrNoActiveInvoice
	}
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if st.LastActionTimestamp.IsZero() || now.Sub(st.LastActionTimestamp) >= window {
		return nil, ErrInvoiceTooOld
	}
	return st.LastCreatedInvoice, nil
}

// Route classifies input and, for edits, resolves the target invoice.
// A gating error means no backend call may be made.
func Route(input string, st *conversation.State, now time.Time, window time.Duration) (Intent, *models.InvoiceRecord, error) {
	ctx := conversation.ContextParsing
	if st != nil {
		ctx = st.CurrentContext
	}

	in := Classify(input, ctx)
	if in != Edit {
		return Parse, nil, nil
	}

	target, err := Gate(st, now, window)
	if err != nil {
		return Edit, nil, err
	}
	return Edit, target, nil
}
