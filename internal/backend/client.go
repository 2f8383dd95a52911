// Package backend is the REST client for the remote invoicing backend.
//
// Every call is a single attempt: there are no retries and no client-side
// timeout beyond the caller's context. Requests are validated before anything
// is sent.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"invoicechat/internal/invoice"
	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	AccessToken() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithClock overrides time.Now, used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client talks to the invoicing backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		now:     time.Now,
		log:     logger.WithComponent("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// check validates req and marks failures with ErrValidation.
func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	hint := "invalid request"
	if errors.As(err, &verrs) {
		hint = strings.Join(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			switch fe.Tag() {
			case "required", "min":
				return fe.Field() + " is required"
			case "email":
				return fe.Field() + " must be a valid email address"
			default:
				return fe.Field() + " is invalid"
			}
		}), ", ")
	}
	return errors.Mark(errors.WithHint(err, hint), ErrValidation)
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded from
// the response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, auth bool, in, out any) error {
	requestID := uuid.NewString()
	log := logger.WithRequestID(c.log, requestID)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: failed to encode request: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to build request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log.Debug().Str("method", method).Str("path", path).Msg("Calling backend")
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		log.Warn().Err(err).Str("path", path).Msg("Backend unreachable")
		return errors.Mark(
			errors.WithHint(errors.Wrapf(err, "%s %s", method, path), "The invoicing service is unreachable."),
			ErrBackendUnavailable,
		)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s: failed to read response", method, path), ErrBackendUnavailable)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Backend responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized || strings.Contains(apiErr.Message, "Unauthorized") {
			return errors.Mark(
				errors.WithHint(apiErr, "Your session has expired, please log in again."),
				ErrUnauthorized,
			)
		}
		log.Warn().Int("status", apiErr.Status).Str("message", apiErr.Message).Msg("Backend returned an error")
		return errors.WithHint(apiErr, apiErr.Message)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeJSON(raw, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// decodeJSON keeps numbers as json.Number inside untyped maps.
func decodeJSON(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// decodeList accepts both a bare array and an object wrapping it under key.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []T
		err := decodeJSON(raw, &list)
		return list, err
	}
	var wrapped map[string]json.RawMessage
	if err := decodeJSON(raw, &wrapped); err != nil {
		return nil, err
	}
	var list []T
	if inner, ok := wrapped[key]; ok {
		if err := decodeJSON(inner, &list); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// SignUp creates an account.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", false, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignIn exchanges credentials for a token pair.
func (c *Client) SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", false, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	req := RefreshRequest{RefreshToken: refreshToken}
	if err := check(req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", false, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession opens a new chat session.
func (c *Client) CreateSession(ctx context.Context, title string) (*ChatSession, error) {
	var out ChatSession
	if err := c.do(ctx, http.MethodPost, "/chat/sessions", true, createSessionRequest{Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the user's chat sessions.
func (c *Client) ListSessions(ctx context.Context) ([]ChatSession, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", true, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[ChatSession](raw, "sessions")
}

// SessionMessages returns the stored messages of one session.
func (c *Client) SessionMessages(ctx context.Context, sessionID Ref) ([]ChatMessage, error) {
	if sessionID == "" {
		return nil, errors.Mark(errors.WithHint(errors.New("session id is required"), "session id is required"), ErrValidation)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID.String())+"/messages", true, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[ChatMessage](raw, "messages")
}

// DeleteSession removes a chat session.
func (c *Client) DeleteSession(ctx context.Context, sessionID Ref) error {
	if sessionID == "" {
		return errors.Mark(errors.WithHint(errors.New("session id is required"), "session id is required"), ErrValidation)
	}
	return c.do(ctx, http.MethodDelete, "/chat/sessions/"+url.PathEscape(sessionID.String()), true, nil, nil)
}

// UpdateSessionTitle renames a chat session.
func (c *Client) UpdateSessionTitle(ctx context.Context, sessionID Ref, title string) (*ChatSession, error) {
	req := updateSessionRequest{Title: strings.TrimSpace(title)}
	if err := check(req); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, errors.Mark(errors.WithHint(errors.New("session id is required"), "session id is required"), ErrValidation)
	}
	var out ChatSession
	if err := c.do(ctx, http.MethodPut, "/chat/sessions/"+url.PathEscape(sessionID.String()), true, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = sessionID
		out.Title = req.Title
	}
	return &out, nil
}

// Parse sends a free-text request for product matching.
func (c *Client) Parse(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if err := check(req); err != nil {
		return nil, err
	}
	var out parseResponse
	if err := c.do(ctx, http.MethodPost, "/parse", true, req, &out); err != nil {
		return nil, err
	}
	return &ParseResult{
		ResponseType:   out.ResponseType,
		Message:        out.Message,
		QueryID:        out.QueryID,
		Products:       lo.Map(out.MatchedProducts, func(m map[string]any, _ int) models.Product { return invoice.NormalizeProduct(m) }),
		ExtractedItems: lo.Map(out.ExtractedItems, func(m map[string]any, _ int) models.ExtractedItem { return invoice.NormalizeExtractedItem(m) }),
	}, nil
}

// Select turns chosen products into a server-side draft.
func (c *Client) Select(ctx context.Context, req SelectRequest) (*SelectResult, error) {
	const op = "Select"

	if err := check(req); err != nil {
		return nil, err
	}
	var out selectResponse
	if err := c.do(ctx, http.MethodPost, "/select", true, req, &out); err != nil {
		return nil, err
	}
	res := &SelectResult{DraftID: out.DraftID}
	if out.InvoiceData != nil {
		draft, err := invoice.Normalize(invoice.ProducerDraft, out.InvoiceData, c.now())
		if err != nil {
			return nil, fmt.Errorf("%s: failed to normalize draft: %w", op, err)
		}
		res.Draft = draft
	}
	return res, nil
}

// CreateInvoice finalizes a draft into an invoice.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*models.InvoiceRecord, error) {
	const op = "CreateInvoice"

	req.Recipient = strings.TrimSpace(req.Recipient)
	if err := check(req); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/invoices", true, req, &out); err != nil {
		return nil, err
	}
	rec, err := invoice.Normalize(invoice.ProducerCreate, out, c.now())
	if err != nil {
		return nil, fmt.Errorf("%s: failed to normalize invoice: %w", op, err)
	}
	return rec, nil
}

// EditInvoice applies a free-text instruction to an existing invoice.
func (c *Client) EditInvoice(ctx context.Context, req EditInvoiceRequest) (*EditResult, error) {
	const op = "EditInvoice"

	req.EditInstruction = strings.TrimSpace(req.EditInstruction)
	if err := check(req); err != nil {
		return nil, err
	}
	var out editInvoiceResponse
	if err := c.do(ctx, http.MethodPost, "/edit_invoice", true, req, &out); err != nil {
		return nil, err
	}

	res := &EditResult{Success: out.Success, Message: out.Message}
	if out.UpdatedInvoiceData != nil {
		rec, err := invoice.Normalize(invoice.ProducerEdit, out.UpdatedInvoiceData, c.now())
		if err != nil {
			return nil, fmt.Errorf("%s: failed to normalize invoice: %w", op, err)
		}
		if rec.ID == "" {
			rec.ID = req.InvoiceID.String()
			rec.Number = "INV-" + rec.ID
		}
		res.Invoice = rec
	}
	return res, nil
}

// GetInvoice fetches a stored invoice.
func (c *Client) GetInvoice(ctx context.Context, id Ref) (*models.InvoiceRecord, error) {
	if id == "" {
		return nil, errors.Mark(errors.WithHint(errors.New("invoice id is required"), "invoice id is required"), ErrValidation)
	}
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(id.String()), true, nil, &out); err != nil {
		return nil, err
	}
	return invoice.Normalize(invoice.ProducerCreate, out, c.now())
}
