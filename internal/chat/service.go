// Package chat turns user text into backend calls and chat bubbles. It owns
// the conversation state of one CLI process.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"invoicechat/internal/backend"
	"invoicechat/internal/conversation"
	"invoicechat/internal/intent"
	"invoicechat/internal/invoice"
	"invoicechat/internal/logger"
	"invoicechat/internal/rewrite"
	"invoicechat/pkg/models"
	"invoicechat/pkg/services"
)

// offlineQueryID marks a product search answered from the sample catalogue.
const offlineQueryID = "offline"

// sessionTitleLength caps the title of a session created from a first message.
const sessionTitleLength = 40

var (
	ErrEmptyMessage      = errors.New("please type a message")
	ErrNoPendingSearch   = errors.New("search for products before selecting")
	ErrNoSelection       = errors.New("select at least one product")
	ErrNoDraft           = errors.New("select products before creating an invoice")
	ErrMissingRecipient  = errors.New("the recipient is required")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrNoDocument        = errors.New("no rendered invoice to edit")
	ErrEditorUnavailable = errors.New("AI editing is not configured, set OPENAI_API_KEY")
)

// CreateInput is what the user supplies when turning a draft into an invoice.
type CreateInput struct {
	Recipient    string
	BuildingSite models.BuildingSite
	Notes        string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFreshnessWindow overrides intent.DefaultFreshnessWindow.
func WithFreshnessWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithOfflineFallback toggles sample data when the backend is unreachable.
func WithOfflineFallback(enabled bool) Option {
	return func(s *Service) { s.offline = enabled }
}

// WithEditor enables AI editing of rendered invoices.
func WithEditor(editor services.ElementEditor) Option {
	return func(s *Service) { s.editor = editor }
}

// Service is the chat flow of one process. Methods are safe for concurrent
// use; each user action runs to completion before the next one starts.
type Service struct {
	api      services.Backend
	renderer services.Renderer
	sessions services.SessionStore
	editor   services.ElementEditor

	now     func() time.Time
	window  time.Duration
	offline bool
	log     zerolog.Logger

	mu       sync.Mutex
	state    *conversation.State
	store    *conversation.Store
	history  []Message
	document *rewrite.Document
}

// NewService creates a chat service.
func NewService(api services.Backend, renderer services.Renderer, sessions services.SessionStore, opts ...Option) *Service {
	s := &Service{
		api:      api,
		renderer: renderer,
		sessions: sessions,
		now:      time.Now,
		window:   intent.DefaultFreshnessWindow,
		offline:  true,
		log:      logger.WithComponent("chat"),
		state:    conversation.NewState(),
		store:    conversation.NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send handles one free-text message.
func (s *Service) Send(ctx context.Context, text string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return s.reply(s.errorMessage(ErrEmptyMessage))
	}
	s.record(newMessage(RoleUser, KindText, text, s.now()))

	in, target, err := intent.Route(text, s.state, s.now(), s.window)
	s.log.Debug().
		Str("intent", in.String()).
		Str("context", string(s.state.CurrentContext)).
		Msg("Classified message")
	if err != nil {
		return s.reply(s.errorMessage(err))
	}

	sessionID, reauth := s.ensureSession(ctx, text)
	if reauth != nil {
		return s.reply(*reauth)
	}

	if in == intent.Edit {
		return s.reply(s.edit(ctx, target, text, sessionID))
	}
	return s.reply(s.parse(ctx, text, sessionID))
}

func (s *Service) parse(ctx context.Context, text string, sessionID backend.Ref) Message {
	res, err := s.api.Parse(ctx, backend.ParseRequest{Query: text, SessionID: sessionID})
	if err != nil {
		if s.canGoOffline(err) {
			products := invoice.SampleProducts(text)
			s.state.SetPendingSearch(offlineQueryID, products)
			m := newMessage(RoleAssistant, KindProducts, invoice.OfflineNotice, s.now())
			m.Products = products
			m.Offline = true
			return m
		}
		return s.failure(err)
	}

	if res.ResponseType != backend.ResponseProductSearch || len(res.Products) == 0 {
		s.state.CurrentContext = conversation.ContextGeneralChat
		msg := res.Message
		if msg == "" && res.ResponseType == backend.ResponseProductSearch {
			msg = "No matching products found."
		}
		m := newMessage(RoleAssistant, KindText, msg, s.now())
		m.Items = res.ExtractedItems
		return m
	}

	s.state.SetPendingSearch(res.QueryID.String(), res.Products)
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("Found %d matching products.", len(res.Products))
	}
	m := newMessage(RoleAssistant, KindProducts, msg, s.now())
	m.Products = res.Products
	m.Items = res.ExtractedItems
	return m
}

func (s *Service) edit(ctx context.Context, target *models.InvoiceRecord, text string, sessionID backend.Ref) Message {
	prior := conversation.Snapshot(target)
	previous := s.state.CurrentContext
	s.state.CurrentContext = conversation.ContextEditing

	res, err := s.api.EditInvoice(ctx, backend.EditInvoiceRequest{
		InvoiceID:       backend.Ref(target.ID),
		EditInstruction: text,
		SessionID:       sessionID,
	})
	if err != nil {
		s.state.CurrentContext = previous
		return s.failure(err)
	}
	if !res.Success || res.Invoice == nil {
		s.state.CurrentContext = previous
		msg := res.Message
		if msg == "" {
			msg = "The invoice could not be updated."
		}
		return s.errorMessage(errors.New(msg))
	}

	updated := res.Invoice
	s.store.Put(updated)
	s.state.RecordInvoiceAction(updated, s.now())

	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("Invoice %s updated.", updated.DisplayNumber())
	}
	s.log.Info().Str("invoice_id", updated.ID).Msg("Invoice edited")
	return s.invoiceMessage(ctx, KindInvoice, msg, updated, prior)
}

// Select turns products of the pending search into a draft.
func (s *Service) Select(ctx context.Context, productIDs []string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	productIDs = lo.Uniq(lo.Compact(productIDs))
	if s.state.PendingQueryID == "" {
		return s.reply(s.errorMessage(ErrNoPendingSearch))
	}
	if len(productIDs) == 0 {
		return s.reply(s.errorMessage(ErrNoSelection))
	}
	s.record(newMessage(RoleUser, KindText, "Selected "+strings.Join(productIDs, ", "), s.now()))

	if s.state.PendingQueryID == offlineQueryID {
		return s.reply(s.offlineDraft(ctx, productIDs))
	}

	res, err := s.api.Select(ctx, backend.SelectRequest{
		QueryID:            backend.Ref(s.state.PendingQueryID),
		SelectedProductIDs: lo.Map(productIDs, func(id string, _ int) backend.Ref { return backend.Ref(id) }),
		SessionID:          s.sessions.SessionID(),
	})
	if err != nil {
		if s.canGoOffline(err) {
			return s.reply(s.offlineDraft(ctx, productIDs))
		}
		return s.reply(s.failure(err))
	}

	s.state.SetDraft(res.DraftID.String(), res.Draft)
	return s.reply(s.invoiceMessage(ctx, KindDraft, "Draft ready. Add the recipient to create the invoice.", res.Draft, nil))
}

func (s *Service) offlineDraft(ctx context.Context, productIDs []string) Message {
	draft := invoice.SampleInvoice(productIDs, "", models.BuildingSite{}, "", s.now())
	s.state.SetDraft(offlineQueryID, draft)
	m := s.invoiceMessage(ctx, KindDraft, invoice.OfflineNotice, draft, nil)
	m.Offline = true
	return m
}

// CreateInvoice finalizes the pending draft.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInput) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.DraftID == "" {
		return s.reply(s.errorMessage(ErrNoDraft))
	}
	in.Recipient = strings.TrimSpace(in.Recipient)
	if in.Recipient == "" {
		return s.reply(s.errorMessage(ErrMissingRecipient))
	}
	s.record(newMessage(RoleUser, KindText, "Create invoice for "+in.Recipient, s.now()))

	if s.state.DraftID == offlineQueryID {
		return s.reply(s.offlineInvoice(ctx, in))
	}

	rec, err := s.api.CreateInvoice(ctx, backend.CreateInvoiceRequest{
		DraftID:      backend.Ref(s.state.DraftID),
		Recipient:    in.Recipient,
		BuildingSite: backend.FromModel(in.BuildingSite),
		Notes:        in.Notes,
		SessionID:    s.sessions.SessionID(),
	})
	if err != nil {
		if s.canGoOffline(err) {
			return s.reply(s.offlineInvoice(ctx, in))
		}
		return s.reply(s.failure(err))
	}

	s.store.Put(rec)
	s.state.RecordInvoiceAction(rec, s.now())
	s.state.ClearDraft()

	s.log.Info().Str("invoice_id", rec.ID).Msg("Invoice created")
	return s.reply(s.invoiceMessage(ctx, KindInvoice, fmt.Sprintf("Invoice %s created.", rec.DisplayNumber()), rec, nil))
}

// offlineInvoice never gets an id, so it is neither stored nor editable.
func (s *Service) offlineInvoice(ctx context.Context, in CreateInput) Message {
	codes := []string{}
	if s.state.Draft != nil {
		codes = lo.Map(s.state.Draft.Products, func(it models.LineItem, _ int) string { return it.Code })
	}
	ids := lo.FilterMap(invoice.SampleProducts(""), func(p models.Product, _ int) (string, bool) {
		return p.ID, lo.Contains(codes, p.Code)
	})

	rec := invoice.SampleInvoice(ids, in.Recipient, in.BuildingSite, in.Notes, s.now())
	s.state.RecordInvoiceAction(rec, s.now())
	s.state.ClearDraft()

	m := s.invoiceMessage(ctx, KindInvoice, invoice.OfflineNotice, rec, nil)
	m.Offline = true
	return m
}

// View makes an invoice the active one, fetching it when this process has
// not seen it yet. The edit freshness window is not extended.
func (s *Service) View(ctx context.Context, id string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimPrefix(strings.TrimSpace(id), "INV-")
	if id == "" {
		return s.reply(s.errorMessage(ErrInvoiceNotFound))
	}

	rec, ok := s.store.Get(id)
	if !ok {
		fetched, err := s.api.GetInvoice(ctx, backend.Ref(id))
		if err != nil {
			return s.reply(s.failure(err))
		}
		if fetched == nil || fetched.ID == "" {
			return s.reply(s.errorMessage(ErrInvoiceNotFound))
		}
		s.store.Put(fetched)
		rec = fetched
	}

	s.state.View(rec)
	return s.reply(s.invoiceMessage(ctx, KindInvoice, fmt.Sprintf("Viewing invoice %s.", rec.DisplayNumber()), rec, nil))
}

// Nodes lists the editable text of the last rendered invoice.
func (s *Service) Nodes() ([]rewrite.TextNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.document == nil {
		return nil, ErrNoDocument
	}
	return s.document.Nodes(), nil
}

// EditElements rewrites text nodes of the last rendered invoice. Either every
// selected node is rewritten or none is.
func (s *Service) EditElements(ctx context.Context, ids []string, instruction string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor == nil {
		return s.reply(s.errorMessage(ErrEditorUnavailable))
	}
	if s.document == nil {
		return s.reply(s.errorMessage(ErrNoDocument))
	}

	next, changes, err := s.editor.Apply(ctx, s.document, ids, instruction)
	if err != nil {
		return s.reply(s.errorMessage(err))
	}
	s.document = next

	msg := fmt.Sprintf("Updated %d of %d selected elements.", len(changes), len(lo.Uniq(ids)))
	m := newMessage(RoleAssistant, KindRewrite, msg, s.now())
	m.HTML = next.HTML()
	return s.reply(m)
}

// Invoices returns every invoice created, edited or viewed in this process.
func (s *Service) Invoices() []*models.InvoiceRecord {
	return s.store.List()
}

// History returns the bubbles exchanged so far.
func (s *Service) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// PendingProducts returns the products of the last search, if any.
func (s *Service) PendingProducts() []models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Product(nil), s.state.PendingProducts...)
}

// Context returns what the conversation is currently about.
func (s *Service) Context() conversation.ContextTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentContext
}

// ensureSession creates a server-side session on the first message. Only an
// auth failure stops the message; other failures continue without a session.
func (s *Service) ensureSession(ctx context.Context, text string) (backend.Ref, *Message) {
	if id := s.sessions.SessionID(); id != "" {
		return id, nil
	}

	sess, err := s.api.CreateSession(ctx, sessionTitle(text))
	if err != nil {
		if backend.IsUnauthorized(err) {
			m := s.failure(err)
			return "", &m
		}
		s.log.Warn().Err(err).Msg("Continuing without chat session")
		return "", nil
	}

	if err := s.sessions.SetSessionID(sess.ID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist chat session")
	}
	s.log.Info().Str("session_id", sess.ID.String()).Msg("Started chat session")
	return sess.ID, nil
}

func (s *Service) canGoOffline(err error) bool {
	return s.offline && backend.IsUnavailable(err)
}

func (s *Service) invoiceMessage(ctx context.Context, kind Kind, text string, rec, prior *models.InvoiceRecord) Message {
	m := newMessage(RoleAssistant, kind, text, s.now())
	m.Invoice = rec
	m.HTML = s.renderer.Render(ctx, rec, prior)
	m.Offline = rec != nil && rec.Offline

	doc, err := rewrite.Parse(m.HTML)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rendered invoice is not editable")
		s.document = nil
	} else {
		s.document = doc
	}
	return m
}

// failure maps a backend error to a bubble: auth failures ask for a new
// login, everything else is shown with its user-facing message.
func (s *Service) failure(err error) Message {
	if backend.IsUnauthorized(err) {
		s.log.Warn().Err(err).Msg("Backend rejected credentials")
		return newMessage(RoleAssistant, KindReauth, backend.DisplayMessage(err), s.now())
	}
	return s.errorMessage(err)
}

func (s *Service) errorMessage(err error) Message {
	s.log.Debug().Err(err).Msg("Action failed")
	return newMessage(RoleAssistant, KindError, backend.DisplayMessage(err), s.now())
}

func (s *Service) record(m Message) {
	s.history = append(s.history, m)
}

func (s *Service) reply(m Message) Message {
	s.record(m)
	return m
}

func sessionTitle(text string) string {
	r := []rune(text)
	if len(r) <= sessionTitleLength {
		return text
	}
	return strings.TrimSpace(string(r[:sessionTitleLength])) + "…"
}
