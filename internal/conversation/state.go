// Package conversation holds the client-side state of one chat: what the user
// is doing, which invoice an edit would target, and every invoice produced so
// far in this process.
package conversation

import (
	"time"

	"invoicechat/pkg/models"
)

// ContextTag is what the conversation is currently about.
type ContextTag string

const (
	ContextParsing        ContextTag = "parsing"
	ContextInvoiceCreated ContextTag = "invoice_created"
	ContextViewingInvoice ContextTag = "viewing_invoice"
	ContextEditing        ContextTag = "editing"
	ContextGeneralChat    ContextTag = "general_chat"
	ContextProductSearch  ContextTag = "product_search"
)

// State is the in-memory conversation state. It is never persisted.
type State struct {
	CurrentContext ContextTag

	// ActiveInvoiceID is a lookup key into the Store, not an owning reference.
	ActiveInvoiceID string

	// LastCreatedInvoice is the implicit edit target.
	LastCreatedInvoice *models.InvoiceRecord

	// LastActionTimestamp is the wall-clock time of the last create or edit.
	LastActionTimestamp time.Time

	// Pending product search, filled by /parse and consumed by /select.
	PendingQueryID  string
	PendingProducts []models.Product

	// Draft produced by /select, consumed by /invoices.
	DraftID string
	Draft   *models.InvoiceRecord
}

// NewState returns a fresh conversation in the parsing context.
func NewState() *State {
	return &State{CurrentContext: ContextParsing}
}

// RecordInvoiceAction marks rec as the result of a create or edit at now.
func (s *State) RecordInvoiceAction(rec *models.InvoiceRecord, now time.Time) {
	s.LastCreatedInvoice = rec
	s.ActiveInvoiceID = rec.ID
	s.LastActionTimestamp = now
	s.CurrentContext = ContextInvoiceCreated
}

// SetPendingSearch remembers a product search until the user selects.
func (s *State) SetPendingSearch(queryID string, products []models.Product) {
	s.PendingQueryID = queryID
	s.PendingProducts = products
	s.CurrentContext = ContextProductSearch
}

// SetDraft remembers the draft produced by a selection and clears the search.
func (s *State) SetDraft(draftID string, draft *models.InvoiceRecord) {
	s.DraftID = draftID
	s.Draft = draft
	s.PendingQueryID = ""
	s.PendingProducts = nil
}

// ClearDraft drops the draft once it became an invoice.
func (s *State) ClearDraft() {
	s.DraftID = ""
	s.Draft = nil
}

// View makes a stored invoice the active one without touching the
// freshness timestamp.
func (s *State) View(rec *models.InvoiceRecord) {
	s.ActiveInvoiceID = rec.ID
	s.LastCreatedInvoice = rec
	s.CurrentContext = ContextViewingInvoice
}
