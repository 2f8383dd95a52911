package invoice_test

import (
	"fmt"
	"log"
	"time"

	"invoicechat/internal/invoice"
)

// Example normalizes an /edit_invoice payload that uses camelCase keys.
func Example() {
	body := []byte(`{
		"invoice_id": "INV-42",
		"recipient": "John Smith",
		"buildingSite": {"City": "Roma"},
		"totalAmount": 1220
	}`)

	rec, err := invoice.NormalizeJSON(invoice.ProducerEdit, body, time.Now())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(rec.ID, rec.Number, rec.Recipient, rec.BuildingSite.City, rec.TotalAmount.Decimal)
	// Output: 42 INV-42 John Smith Roma 1220
}
