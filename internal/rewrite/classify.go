package rewrite

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContentType is the coarse kind of a text fragment, passed to the rewrite
// service so it can keep the format.
type ContentType string

const (
	ContentAmount      ContentType = "amount"
	ContentDate        ContentType = "date"
	ContentAddress     ContentType = "address"
	ContentCompany     ContentType = "company"
	ContentCode        ContentType = "code"
	ContentDescription ContentType = "description"
	ContentText        ContentType = "text"
)

// descriptionMinLength is the rune count above which free text counts as a
// description.
const descriptionMinLength = 50

var (
	amountPattern  = regexp.MustCompile(`\d+[.,]\d{2}\b|\bEUR\b`)
	datePattern    = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	addressPattern = regexp.MustCompile(`(?i)\b(?:via|viale|piazza|piazzale|corso|largo|vicolo|strada|street|st\.|road|avenue|ave\.|boulevard|lane|cap)\b`)
	companyPattern = regexp.MustCompile(`(?i)(?:\b(?:srl|spa|snc|sas|srls|ltd|inc|llc|gmbh|company|società|societa|group)\b|s\.r\.l\.|s\.p\.a\.|s\.n\.c\.)`)
	codePattern    = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._/-]{1,19}$`)
)

// ClassifyContent runs ordered checks: amount, date, address, company, code,
// description, then plain text.
func ClassifyContent(text string) ContentType {
	t := strings.TrimSpace(text)

	switch {
	case strings.ContainsAny(t, "€$£") || amountPattern.MatchString(t):
		return ContentAmount
	case datePattern.MatchString(t):
		return ContentDate
	case addressPattern.MatchString(t):
		return ContentAddress
	case companyPattern.MatchString(t):
		return ContentCompany
	case isCode(t):
		return ContentCode
	case utf8.RuneCountInString(t) > descriptionMinLength:
		return ContentDescription
	default:
		return ContentText
	}
}

func isCode(t string) bool {
	if !codePattern.MatchString(t) {
		return false
	}
	return strings.IndexFunc(t, unicode.IsLetter) >= 0
}
