package entity

// ReceiptExtraction is the structured view of a scanned receipt.
// Unknown fields stay nil; LineItems is never nil once coerced.
type ReceiptExtraction struct {
	Merchant   *string    `json:"merchant"`
	Date       *string    `json:"date"`
	Currency   *string    `json:"currency"`
	LineItems  []LineItem `json:"lineItems"`
	Subtotal   *float64   `json:"subtotal"`
	Tax        *float64   `json:"tax"`
	Total      *float64   `json:"total"`
	Confidence float64    `json:"confidence"`
}

// LineItem is one purchased product on a receipt.
type LineItem struct {
	Name      string   `json:"name"`
	Qty       *float64 `json:"qty"`
	UnitPrice *float64 `json:"unitPrice"`
	Total     *float64 `json:"total"`
}
