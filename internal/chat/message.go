package chat

import (
	"time"

	"github.com/oklog/ulid/v2"

	"invoicechat/pkg/models"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind tells the front end how to show a bubble.
type Kind string

const (
	KindText     Kind = "text"
	KindProducts Kind = "products"
	KindDraft    Kind = "draft"
	KindInvoice  Kind = "invoice"
	KindRewrite  Kind = "rewrite"
	KindError    Kind = "error"
	// KindReauth asks the user to log in again.
	KindReauth Kind = "reauth"
)

// Message is one chat bubble.
type Message struct {
	ID        string
	Role      Role
	Kind      Kind
	Text      string
	Products  []models.Product
	Items     []models.ExtractedItem
	Invoice   *models.InvoiceRecord
	HTML      string
	Offline   bool
	CreatedAt time.Time
}

// IsError reports whether the bubble reports a failed action.
func (m Message) IsError() bool {
	return m.Kind == KindError || m.Kind == KindReauth
}

func newMessage(role Role, kind Kind, text string, now time.Time) Message {
	return Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Role:      role,
		Kind:      kind,
		Text:      text,
		CreatedAt: now,
	}
}
