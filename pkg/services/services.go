package services

import (
	"context"

	"invoicechat/internal/backend"
	"invoicechat/internal/rewrite"
	"invoicechat/pkg/models"
)

// Backend is the part of the invoicing backend the chat flow talks to.
type Backend interface {
	// CreateSession opens a server-side conversation
	CreateSession(ctx context.Context, title string) (*backend.ChatSession, error)

	// Parse matches free text against the product catalogue
	Parse(ctx context.Context, req backend.ParseRequest) (*backend.ParseResult, error)

	// Select turns chosen products into an invoice draft
	Select(ctx context.Context, req backend.SelectRequest) (*backend.SelectResult, error)

	// CreateInvoice finalizes a draft
	CreateInvoice(ctx context.Context, req backend.CreateInvoiceRequest) (*models.InvoiceRecord, error)

	// EditInvoice applies a natural-language edit to an existing invoice
	EditInvoice(ctx context.Context, req backend.EditInvoiceRequest) (*backend.EditResult, error)

	// GetInvoice fetches an invoice by id
	GetInvoice(ctx context.Context, id backend.Ref) (*models.InvoiceRecord, error)
}

// Renderer turns an invoice into a printable HTML document, highlighting
// fields that differ from prior when prior is not nil.
type Renderer interface {
	Render(ctx context.Context, rec, prior *models.InvoiceRecord) string
}

// ElementEditor rewrites selected text nodes of a rendered document.
type ElementEditor interface {
	Apply(ctx context.Context, doc *rewrite.Document, ids []string, instruction string) (*rewrite.Document, []rewrite.Change, error)
}

// SessionStore remembers the current server-side chat session.
type SessionStore interface {
	SessionID() backend.Ref
	SetSessionID(id backend.Ref) error
}
