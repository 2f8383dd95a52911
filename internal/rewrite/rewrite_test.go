package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicechat/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Disable()
	os.Exit(m.Run())
}

const sample = `<html><head><title>INV-7</title><style>td{}</style></head><body>
<h1>INV-7</h1>
<p>Spett.le <strong>Rossi Impianti Srl</strong></p>
<p>Via Garibaldi 12</p>
<table><tr><td>ARGO16</td><td>€ 7.450,00</td><td>12/03/2024</td></tr></table>
<p>  Pompa di calore aria-acqua per riscaldamento e raffrescamento residenziale  </p>
<script>var x = "ignored";</script>
</body></html>`

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := Parse(markup)
	require.NoError(t, err)
	return doc
}

func nodeByText(t *testing.T, doc *Document, text string) TextNode {
	t.Helper()
	for _, n := range doc.Nodes() {
		if n.Text == text {
			return n
		}
	}
	t.Fatalf("no node with text %q", text)
	return TextNode{}
}

func TestParseCollectsVisibleText(t *testing.T) {
	doc := mustParse(t, sample)

	texts := make([]string, 0)
	for _, n := range doc.Nodes() {
		texts = append(texts, n.Text)
	}
	assert.Equal(t, []string{
		"INV-7",
		"Spett.le",
		"Rossi Impianti Srl",
		"Via Garibaldi 12",
		"ARGO16",
		"€ 7.450,00",
		"12/03/2024",
		"Pompa di calore aria-acqua per riscaldamento e raffrescamento residenziale",
	}, texts)
	assert.Equal(t, "strong", nodeByText(t, doc, "Rossi Impianti Srl").Tag)
}

func TestNodeIDsAreStable(t *testing.T) {
	a := mustParse(t, sample).Nodes()
	b := mustParse(t, sample).Nodes()
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		if i > 0 {
			assert.Less(t, a[i-1].ID, a[i].ID)
		}
	}
}

func TestWithTextKeepsOriginal(t *testing.T) {
	doc := mustParse(t, sample)
	code := nodeByText(t, doc, "ARGO16")
	desc := nodeByText(t, doc, "Pompa di calore aria-acqua per riscaldamento e raffrescamento residenziale")

	next, err := doc.WithText(map[string]string{
		code.ID: "ARGO20",
		desc.ID: "Pompa di calore <ibrida>",
	})
	require.NoError(t, err)

	got, ok := next.Node(code.ID)
	require.True(t, ok)
	assert.Equal(t, "ARGO20", got.Text)
	assert.Contains(t, next.HTML(), "Pompa di calore &lt;ibrida&gt;")
	assert.Contains(t, next.HTML(), "<p>  Pompa di calore")
	assert.Len(t, next.Nodes(), len(doc.Nodes()))

	same, _ := doc.Node(code.ID)
	assert.Equal(t, "ARGO16", same.Text)

	_, err = doc.WithText(map[string]string{"nope": "x"})
	assert.ErrorIs(t, err, ErrUnknownNode)
	_, err = doc.WithText(map[string]string{code.ID: "  "})
	assert.ErrorIs(t, err, ErrEmptyRewrite)
}

func TestNeighbours(t *testing.T) {
	doc := mustParse(t, sample)
	before, after := doc.Neighbours(nodeByText(t, doc, "ARGO16").ID, 1)
	assert.Equal(t, []string{"Via Garibaldi 12"}, before)
	assert.Equal(t, []string{"€ 7.450,00"}, after)

	before, _ = doc.Neighbours(doc.Nodes()[0].ID, 2)
	assert.Empty(t, before)
}

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		text string
		want ContentType
	}{
		{"€ 7.450,00", ContentAmount},
		{"1320.50", ContentAmount},
		{"Totale 100 EUR", ContentAmount},
		{"12/03/2024", ContentDate},
		{"Via Garibaldi 12", ContentAddress},
		{"Piazza Duomo", ContentAddress},
		{"Rossi Impianti Srl", ContentCompany},
		{"ACME S.p.A.", ContentCompany},
		{"ARGO16", ContentCode},
		{"INST-PDC", ContentCode},
		{"2024", ContentText},
		{"Pompa di calore aria-acqua per riscaldamento e raffrescamento residenziale", ContentDescription},
		{"Europe", ContentText},
		{"Mario Rossi", ContentText},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContent(tt.text))
		})
	}
}

type fakeRewriter struct {
	mu    sync.Mutex
	seen  []Request
	reply func(Request) (string, error)
}

func (f *fakeRewriter) Rewrite(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(req)
}

func TestCoordinatorAppliesChangedRewrites(t *testing.T) {
	doc := mustParse(t, sample)
	amount := nodeByText(t, doc, "€ 7.450,00")
	code := nodeByText(t, doc, "ARGO16")

	fake := &fakeRewriter{reply: func(r Request) (string, error) {
		if r.ElementType == ContentAmount {
			return "  € 8.000,00\n", nil
		}
		return r.SelectedText, nil
	}}

	var calls []int
	c := NewCoordinator(fake, WithProgress(func(done, total int) {
		assert.Equal(t, 2, total)
		calls = append(calls, done)
	}))

	next, changes, err := c.Apply(context.Background(), doc, []string{amount.ID, code.ID, amount.ID}, "  aumenta a 8000 ")
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, Change{ID: amount.ID, Type: ContentAmount, Before: "€ 7.450,00", After: "€ 8.000,00"}, changes[0])
	got, _ := next.Node(amount.ID)
	assert.Equal(t, "€ 8.000,00", got.Text)
	assert.Equal(t, []int{1, 2}, calls)

	require.Len(t, fake.seen, 2)
	for _, r := range fake.seen {
		assert.Equal(t, "aumenta a 8000", r.Prompt)
		assert.Contains(t, r.Context, r.SelectedText)
	}
}

func TestCoordinatorIsAllOrNothing(t *testing.T) {
	doc := mustParse(t, sample)
	ids := []string{nodeByText(t, doc, "ARGO16").ID, nodeByText(t, doc, "12/03/2024").ID}

	boom := errors.New("rate limited")
	fake := &fakeRewriter{reply: func(r Request) (string, error) {
		if r.ElementType == ContentDate {
			return "", boom
		}
		return "ARGO20", nil
	}}

	next, changes, err := NewCoordinator(fake).Apply(context.Background(), doc, ids, "update")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var rwErr *RewriteError
	require.ErrorAs(t, err, &rwErr)
	assert.Equal(t, ids[1], rwErr.Details)
	assert.Nil(t, next)
	assert.Nil(t, changes)

	same, _ := doc.Node(ids[0])
	assert.Equal(t, "ARGO16", same.Text)
}

func TestCoordinatorRejectsEmptyRewrite(t *testing.T) {
	doc := mustParse(t, sample)
	fake := &fakeRewriter{reply: func(Request) (string, error) { return " ", nil }}

	_, _, err := NewCoordinator(fake).Apply(context.Background(), doc, []string{doc.Nodes()[0].ID}, "clear")
	assert.ErrorIs(t, err, ErrEmptyRewrite)
}

func TestCoordinatorValidation(t *testing.T) {
	doc := mustParse(t, sample)
	fake := &fakeRewriter{reply: func(Request) (string, error) { return "x", nil }}
	c := NewCoordinator(fake, WithConcurrency(1))

	_, _, err := c.Apply(context.Background(), doc, nil, "do it")
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, _, err = c.Apply(context.Background(), doc, []string{doc.Nodes()[0].ID}, "   ")
	assert.ErrorIs(t, err, ErrEmptyInstruction)

	_, _, err = c.Apply(context.Background(), doc, []string{"missing"}, "do it")
	assert.ErrorIs(t, err, ErrUnknownNode)

	assert.Empty(t, fake.seen)
}

func newOpenAIServer(t *testing.T, answer string, status int) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestOpenAIRewriter(t *testing.T) {
	srv, bodies := newOpenAIServer(t, "```\n\"€ 8.000,00\"\n```", http.StatusOK)
	rw := NewOpenAIRewriter("test-key", "", srv.URL+"/v1")

	got, err := rw.Rewrite(context.Background(), Request{
		SelectedText: "€ 7.450,00",
		ElementType:  ContentAmount,
		Prompt:       "aumenta a 8000",
		Context:      "ARGO16 | € 7.450,00",
	})
	require.NoError(t, err)
	assert.Equal(t, "€ 8.000,00", got)

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, "gpt-4o-mini", body["model"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "Return only the new value")

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(messages[1].(map[string]any)["content"].(string)), &payload))
	assert.Equal(t, map[string]string{
		"selectedText": "€ 7.450,00",
		"elementType":  "amount",
		"prompt":       "aumenta a 8000",
		"context":      "ARGO16 | € 7.450,00",
	}, payload)
}

func TestOpenAIRewriterError(t *testing.T) {
	srv, _ := newOpenAIServer(t, "", http.StatusTooManyRequests)
	rw := NewOpenAIRewriter("test-key", "gpt-4o", srv.URL+"/v1")

	_, err := rw.Rewrite(context.Background(), Request{SelectedText: "a", Prompt: "b"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"), err.Error())
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "ARGO20", cleanAnswer("  ARGO20\n"))
	assert.Equal(t, "ARGO20", cleanAnswer("'ARGO20'"))
	assert.Equal(t, "a\nb", cleanAnswer("```text\na\nb\n```"))
	assert.Equal(t, `"`, cleanAnswer(`"`))
}
