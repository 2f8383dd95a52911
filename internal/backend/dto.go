package backend

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"invoicechat/pkg/models"
)

var validate = validator.New()

// Ref is an identifier the backend may send as a number or a string.
// Numeric refs are sent back as JSON numbers.
type Ref string

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.numeric() {
		return []byte(r), nil
	}
	return json.Marshal(string(r))
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Ref(n.String())
	return nil
}

func (r Ref) String() string {
	return string(r)
}

func (r Ref) numeric() bool {
	if r == "" || (len(r) > 1 && r[0] == '0') {
		return false
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// User is the account returned by the auth endpoints.
type User struct {
	ID    Ref    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is the token pair returned by signup, signin and refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// ChatSession is a server-side conversation.
type ChatSession struct {
	ID        Ref    `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ChatMessage is one stored message of a session.
type ChatMessage struct {
	ID        Ref            `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	CreatedAt string         `json:"created_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type updateSessionRequest struct {
	Title string `json:"title" validate:"required"`
}

// Response types of /parse.
const (
	ResponseGeneralChat   = "general_chat"
	ResponseProductSearch = "product_search"
)

type ParseRequest struct {
	Query     string `json:"query" validate:"required"`
	SessionID Ref    `json:"session_id,omitempty"`
}

type parseResponse struct {
	ResponseType    string           `json:"response_type"`
	Message         string           `json:"message,omitempty"`
	QueryID         Ref              `json:"query_id,omitempty"`
	MatchedProducts []map[string]any `json:"matched_products,omitempty"`
	ExtractedItems  []map[string]any `json:"extracted_items,omitempty"`
}

// ParseResult is the normalized /parse answer.
type ParseResult struct {
	ResponseType   string
	Message        string
	QueryID        Ref
	Products       []models.Product
	ExtractedItems []models.ExtractedItem
}

type SelectRequest struct {
	QueryID            Ref   `json:"query_id" validate:"required"`
	SelectedProductIDs []Ref `json:"selected_product_ids" validate:"required,min=1,dive,required"`
	SessionID          Ref   `json:"session_id,omitempty"`
}

type selectResponse struct {
	DraftID     Ref            `json:"draft_id"`
	InvoiceData map[string]any `json:"invoice_data"`
}

// SelectResult is the draft produced by a product selection.
type SelectResult struct {
	DraftID Ref
	Draft   *models.InvoiceRecord
}

// BuildingSite is the wire form of the installation address.
type BuildingSite struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// FromModel converts the canonical building site.
func FromModel(b models.BuildingSite) BuildingSite {
	return BuildingSite{
		Address:    b.Address,
		City:       b.City,
		PostalCode: b.PostalCode,
		Country:    b.Country,
	}
}

type CreateInvoiceRequest struct {
	DraftID      Ref          `json:"draft_id" validate:"required"`
	Recipient    string       `json:"recipient" validate:"required"`
	BuildingSite BuildingSite `json:"building_site"`
	Notes        string       `json:"notes"`
	SessionID    Ref          `json:"session_id,omitempty"`
}

type EditInvoiceRequest struct {
	InvoiceID       Ref    `json:"invoice_id" validate:"required"`
	EditInstruction string `json:"edit_instruction" validate:"required"`
	SessionID       Ref    `json:"session_id,omitempty"`
}

type editInvoiceResponse struct {
	Success            bool           `json:"success"`
	Message            string         `json:"message"`
	UpdatedInvoiceData map[string]any `json:"updated_invoice_data"`
}

// EditResult is the normalized /edit_invoice answer.
type EditResult struct {
	Success bool
	Message string
	Invoice *models.InvoiceRecord
}
