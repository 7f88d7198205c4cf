// Package invoice implements the invoice validation and financial
// calculation engine. It turns the raw structured payload extracted from a
// model reply into a validated Data value with computed monetary fields, or
// rejects it with a user-facing reason.
//
// All monetary arithmetic uses shopspring/decimal; derived fields (subtotal,
// taxable subtotal, tax amount, total) are pure functions of the line items,
// discount, and tax rate, and are recomputed rather than trusted from storage.
package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date is a calendar date (no time component) serialized as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }

// String returns the ISO form of the date.
func (d Date) String() string { return d.Time.Format("2006-01-02") }

// MarshalJSON encodes the date as an ISO "YYYY-MM-DD" string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LineItem is a single billable line on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Taxable     bool            `json:"taxable"`

	// LineTotal is quantity × unit_price, recomputed by Recalculate.
	LineTotal decimal.Decimal `json:"line_total"`
}

// Total returns quantity × unit price for this line.
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Data is a complete, validated invoice: the customer fields and line items
// gathered from the conversation plus the derived monetary fields.
type Data struct {
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerAddress string `json:"customer_address,omitempty"`

	InvoiceDate Date `json:"invoice_date"`
	DueDate     Date `json:"due_date"`

	LineItems []LineItem `json:"line_items"`

	TaxRate  decimal.Decimal `json:"tax_rate"`
	Discount decimal.Decimal `json:"discount"`
	Notes    string          `json:"notes,omitempty"`

	// Derived fields, filled in by Recalculate. A stored invoice whose
	// derived values disagree with a recomputation is invalid.
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxableSubtotal decimal.Decimal `json:"taxable_subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
}

// ComputeSubtotal sums quantity × unit_price over all line items.
func (d *Data) ComputeSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range d.LineItems {
		sum = sum.Add(li.Total())
	}
	return sum
}

// ComputeTaxableSubtotal sums the line totals of taxable items only.
func (d *Data) ComputeTaxableSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range d.LineItems {
		if li.Taxable {
			sum = sum.Add(li.Total())
		}
	}
	return sum
}

// ComputeTaxAmount applies the tax rate to the taxable subtotal net of the
// proportionally allocated discount:
//
//	tax = (taxable_subtotal − discount × taxable_subtotal/subtotal) × tax_rate
//
// The discount is spread across taxable and non-taxable items in proportion
// to their share of the subtotal, so a flat discount does not over- or
// under-tax the remainder. A zero subtotal yields zero tax.
func (d *Data) ComputeTaxAmount() decimal.Decimal {
	subtotal := d.ComputeSubtotal()
	if subtotal.IsZero() {
		return decimal.Zero
	}
	taxable := d.ComputeTaxableSubtotal()
	taxableDiscount := d.Discount.Mul(taxable).Div(subtotal)
	return taxable.Sub(taxableDiscount).Mul(d.TaxRate)
}

// Recalculate refreshes every derived field (line totals, subtotal, taxable
// subtotal, tax amount, total) from the line items, discount, and tax rate.
func (d *Data) Recalculate() {
	for i := range d.LineItems {
		d.LineItems[i].LineTotal = d.LineItems[i].Total()
	}
	d.Subtotal = d.ComputeSubtotal()
	d.TaxableSubtotal = d.ComputeTaxableSubtotal()
	d.TaxAmount = d.ComputeTaxAmount()
	d.Total = d.Subtotal.Sub(d.Discount).Add(d.TaxAmount)
}

// Consistent reports whether the stored derived fields agree with a fresh
// recomputation. Used to reject records whose totals were tampered with or
// drifted from the line items.
func (d *Data) Consistent() bool {
	return d.Subtotal.Equal(d.ComputeSubtotal()) &&
		d.TaxableSubtotal.Equal(d.ComputeTaxableSubtotal()) &&
		d.TaxAmount.Equal(d.ComputeTaxAmount()) &&
		d.Total.Equal(d.Subtotal.Sub(d.Discount).Add(d.TaxAmount))
}

// Summary renders a human-readable summary of the invoice, suitable for
// echoing back to the user after creation.
func (d *Data) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice for %s\n", d.CustomerName)
	fmt.Fprintf(&b, "Date: %s\n", d.InvoiceDate)
	fmt.Fprintf(&b, "Due: %s\n\n", d.DueDate)
	b.WriteString("Line Items:\n")
	for i, li := range d.LineItems {
		fmt.Fprintf(&b, "  %d. %s - %s x $%s = $%s\n",
			i+1, li.Description, li.Quantity.String(),
			li.UnitPrice.StringFixed(2), li.Total().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: $%s\n", d.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Discount: $%s\n", d.Discount.StringFixed(2))
	fmt.Fprintf(&b, "Tax (%s%%): $%s\n", d.TaxRate.Mul(decimal.NewFromInt(100)).String(), d.TaxAmount.StringFixed(2))
	fmt.Fprintf(&b, "Total: $%s", d.Total.StringFixed(2))
	if d.Notes != "" {
		fmt.Fprintf(&b, "\n\nNotes: %s", d.Notes)
	}
	return b.String()
}
