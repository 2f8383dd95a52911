package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicechat/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Disable()
	os.Exit(m.Run())
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

// recorder is a fake backend that records the last request.
type recorder struct {
	calls  atomic.Int32
	method string
	path   string
	header http.Header
	body   map[string]any
}

func newServer(t *testing.T, rec *recorder, status int, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls.Add(1)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.header = r.Header.Clone()
		rec.body = nil
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			dec := json.NewDecoder(bytes.NewReader(b))
			dec.UseNumber()
			require.NoError(t, dec.Decode(&rec.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEditInvoiceSendsNumericID(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{
		"success": true,
		"message": "Recipient updated",
		"updated_invoice_data": {"recipient": "John Smith", "totalAmount": 1220}
	}`)

	c := NewClient(srv.URL+"/", WithTokenSource(staticToken("tok")))
	res, err := c.EditInvoice(context.Background(), EditInvoiceRequest{
		InvoiceID:       "42",
		EditInstruction: "Change the recipient to John Smith",
		SessionID:       "s-1",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/edit_invoice", rec.path)
	assert.Equal(t, json.Number("42"), rec.body["invoice_id"])
	assert.Equal(t, "Change the recipient to John Smith", rec.body["edit_instruction"])
	assert.Equal(t, "s-1", rec.body["session_id"])
	assert.Equal(t, "Bearer tok", rec.header.Get("Authorization"))
	_, err = uuid.Parse(rec.header.Get("X-Request-ID"))
	assert.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Recipient updated", res.Message)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "42", res.Invoice.ID)
	assert.Equal(t, "INV-42", res.Invoice.Number)
	assert.Equal(t, "John Smith", res.Invoice.Recipient)
}

func TestParseProductSearch(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{
		"response_type": "product_search",
		"query_id": 17,
		"matched_products": [
			{"id": 3, "code": "ARGO16", "name": "Pompa di calore", "price": "7450.00", "score": 0.93}
		],
		"extracted_items": [{"name": "heat pump"}]
	}`)

	c := NewClient(srv.URL)
	res, err := c.Parse(context.Background(), ParseRequest{Query: "  Quote for ARGO16 heat pump climate zone A "})
	require.NoError(t, err)

	assert.Equal(t, "/parse", rec.path)
	assert.Equal(t, "Quote for ARGO16 heat pump climate zone A", rec.body["query"])
	_, hasSession := rec.body["session_id"]
	assert.False(t, hasSession)
	assert.Empty(t, rec.header.Get("Authorization"))

	assert.Equal(t, ResponseProductSearch, res.ResponseType)
	assert.Equal(t, Ref("17"), res.QueryID)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "3", res.Products[0].ID)
	assert.True(t, decimal.NewFromInt(7450).Equal(res.Products[0].Price))
	assert.InDelta(t, 0.93, res.Products[0].Score, 1e-9)
	require.Len(t, res.ExtractedItems, 1)
	assert.Equal(t, 1, res.ExtractedItems[0].Quantity)
}

func TestSelectAndCreate(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{"draft_id": "d-9", "invoice_data": {"recipient": "", "products": [{"name": "X", "unit_price": 10}]}}`)

	c := NewClient(srv.URL)
	sel, err := c.Select(context.Background(), SelectRequest{QueryID: "17", SelectedProductIDs: []Ref{"3", "abc"}})
	require.NoError(t, err)
	assert.Equal(t, json.Number("17"), rec.body["query_id"])
	assert.Equal(t, []any{json.Number("3"), "abc"}, rec.body["selected_product_ids"])
	assert.Equal(t, Ref("d-9"), sel.DraftID)
	require.NotNil(t, sel.Draft)
	assert.Len(t, sel.Draft.Products, 1)

	srv2 := newServer(t, rec, http.StatusCreated, `{"id": 42, "recipient": "Acme", "total_amount": 100}`)
	c2 := NewClient(srv2.URL)
	inv, err := c2.CreateInvoice(context.Background(), CreateInvoiceRequest{
		DraftID:      "d-9",
		Recipient:    "Acme",
		BuildingSite: BuildingSite{City: "Roma"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/invoices", rec.path)
	assert.Equal(t, map[string]any{"city": "Roma"}, rec.body["building_site"])
	assert.Equal(t, "42", inv.ID)
	assert.Equal(t, "INV-42", inv.Number)
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{}`)
	c := NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.Parse(ctx, ParseRequest{Query: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "query is required", DisplayMessage(err))

	_, err = c.EditInvoice(ctx, EditInvoiceRequest{InvoiceID: "42"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = c.Select(ctx, SelectRequest{QueryID: "1"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = c.SignUp(ctx, SignUpRequest{Email: "nope", Password: "secret1"})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "email must be a valid email address", DisplayMessage(err))

	err = c.DeleteSession(ctx, "")
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Zero(t, rec.calls.Load())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
		message      string
	}{
		{name: "401", status: 401, body: `{"detail": "Not authenticated"}`, unauthorized: true, message: "Not authenticated"},
		{name: "unauthorized in message", status: 403, body: `{"message": "Unauthorized: token revoked"}`, unauthorized: true, message: "Unauthorized: token revoked"},
		{name: "detail string", status: 400, body: `{"detail": "Invoice not found"}`, message: "Invoice not found"},
		{name: "nested error", status: 422, body: `{"error": {"message": "bad draft"}}`, message: "bad draft"},
		{name: "validation list", status: 422, body: `{"detail": [{"msg": "field required"}, {"msg": "too short"}]}`, message: "field required; too short"},
		{name: "no body", status: 500, body: ``, message: "API Error: 500"},
		{name: "html body", status: 502, body: `<html>Bad gateway</html>`, message: "API Error: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &recorder{}, tt.status, tt.body)
			_, err := NewClient(srv.URL).GetInvoice(context.Background(), "42")
			require.Error(t, err)

			assert.Equal(t, tt.unauthorized, IsUnauthorized(err))
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			if !tt.unauthorized {
				assert.True(t, errors.Is(err, ErrAPI))
				assert.Equal(t, tt.message, DisplayMessage(err))
			}
			assert.False(t, IsUnavailable(err))
		})
	}
}

func TestBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Parse(context.Background(), ParseRequest{Query: "ARGO16"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, "The invoicing service is unreachable.", DisplayMessage(err))
}

func TestCanceledContextIsNotUnavailable(t *testing.T) {
	srv := newServer(t, &recorder{}, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL).Parse(ctx, ParseRequest{Query: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsUnavailable(err))
}

func TestSessions(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{"sessions": [{"id": 1, "title": "Preventivo"}, {"id": "b", "title": "Altro"}]}`)
	c := NewClient(srv.URL, WithTokenSource(staticToken("tok")))
	ctx := context.Background()

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Ref("1"), list[0].ID)
	assert.Equal(t, "Altro", list[1].Title)

	srv2 := newServer(t, rec, http.StatusOK, `[{"id": 5, "role": "user", "content": "ciao"}]`)
	msgs, err := NewClient(srv2.URL).SessionMessages(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "/chat/sessions/1/messages", rec.path)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ciao", msgs[0].Content)

	srv3 := newServer(t, rec, http.StatusNoContent, ``)
	c3 := NewClient(srv3.URL)
	require.NoError(t, c3.DeleteSession(ctx, "1"))
	assert.Equal(t, http.MethodDelete, rec.method)

	s, err := c3.UpdateSessionTitle(ctx, "1", " Nuovo titolo ")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/chat/sessions/1", rec.path)
	assert.Equal(t, "Nuovo titolo", rec.body["title"])
	assert.Equal(t, Ref("1"), s.ID)
	assert.Equal(t, "Nuovo titolo", s.Title)
}

func TestAuthEndpoints(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, http.StatusOK, `{"access_token": "a", "refresh_token": "r", "expires_in": 3600, "user": {"id": 9, "email": "a@b.it"}}`)
	c := NewClient(srv.URL, WithTokenSource(staticToken("old")))
	ctx := context.Background()

	res, err := c.SignIn(ctx, SignInRequest{Email: "a@b.it", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "/auth/signin", rec.path)
	assert.Empty(t, rec.header.Get("Authorization"))
	assert.Equal(t, "a", res.AccessToken)
	assert.Equal(t, 3600, res.ExpiresIn)
	assert.Equal(t, Ref("9"), res.User.ID)

	_, err = c.RefreshToken(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "/auth/refresh-token", rec.path)
	assert.Equal(t, "r", rec.body["refresh_token"])

	_, err = c.SignUp(ctx, SignUpRequest{Email: "a@b.it", Password: "secret1", Name: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "/auth/signup", rec.path)
}

func TestRefJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Ref `json:"a"`
		B Ref `json:"b"`
		C Ref `json:"c"`
		D Ref `json:"d,omitempty"`
	}{A: "42", B: "INV-42", C: "007"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 42, "b": "INV-42", "c": "007"}`, string(b))

	var out struct {
		A, B, C Ref
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A": 12, "B": "x", "C": null}`), &out))
	assert.Equal(t, Ref("12"), out.A)
	assert.Equal(t, Ref("x"), out.B)
	assert.Equal(t, Ref(""), out.C)
}
