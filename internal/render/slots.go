package render

import (
	"strconv"
	"strings"
)

// slotTable defers insertion of rendered fragments until every placeholder
// has been located.
type slotTable struct {
	pairs []string
}

func newSlotTable() *slotTable {
	return &slotTable{}
}

// add stores content and returns the token standing in for it.
func (t *slotTable) add(content string) string {
	token := "\x00slot:" + strconv.Itoa(len(t.pairs)/2) + "\x00"
	t.pairs = append(t.pairs, token, content)
	return token
}

func (t *slotTable) expand(doc string) string {
	if len(t.pairs) == 0 {
		return doc
	}
	return strings.NewReplacer(t.pairs...).Replace(doc)
}
