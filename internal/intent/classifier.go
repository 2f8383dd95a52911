// Package intent decides whether a chat message edits the current invoice or
// starts a new product request.
package intent

import (
	"regexp"
	"strings"

	"invoicechat/internal/conversation"
)

// Intent is the routing decision for one message.
type Intent int

const (
	Parse Intent = iota
	Edit
)

func (i Intent) String() string {
	if i == Edit {
		return "edit"
	}
	return "parse"
}

// editPhrases route to Edit on their own, in any context.
var editPhrases = []string{
	"change recipient to",
	"change the recipient to",
	"set recipient to",
	"set the recipient to",
	"update recipient to",
	"update the recipient to",
	"change address to",
	"change the address to",
	"change the building site",
	"change notes to",
	"change the notes to",
	"cambia destinatario",
	"cambia il destinatario",
	"cambia l'indirizzo",
	"cambia indirizzo",
	"cambia le note",
	"modifica il destinatario",
	"modifica l'indirizzo",
}

var editKeywords = []string{
	"change", "changes", "changed",
	"update", "updates", "updated",
	"modify", "modified",
	"edit", "edits", "edited",
	"correct", "fix",
	"replace", "rename",
	"add", "remove", "delete",
	"cambia", "cambiare",
	"modifica", "modificare",
	"aggiorna", "aggiornare",
	"correggi", "sostituisci",
	"aggiungi", "rimuovi", "togli", "elimina",
}

// invoiceNouns must co-occur with a keyword outside the invoice_created
// context. Plain substrings, so "invoices" counts.
var invoiceNouns = []string{"invoice", "receipt", "fattura", "ricevuta"}

var keywordPattern = regexp.MustCompile(`\b(?:` + strings.Join(editKeywords, "|") + `)\b`)

// Classify routes input. Checks run in a fixed order: edit phrases, then an
// edit keyword together with an invoice noun, then an edit keyword alone when
// an invoice was just created. Anything else is Parse.
//
// "update" alone outside invoice_created is Parse even if the user meant an
// edit.
func Classify(input string, ctx conversation.ContextTag) Intent {
	text := strings.ToLower(input)

	for _, p := range editPhrases {
		if strings.Contains(text, p) {
			return Edit
		}
	}

	hasKeyword := keywordPattern.MatchString(text)
	if hasKeyword && containsAny(text, invoiceNouns) {
		return Edit
	}

	if hasKeyword && ctx == conversation.ContextInvoiceCreated {
		return Edit
	}

	return Parse
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
