package invoice

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Validation bounds. Dates outside the backdate window are corrected rather
// than rejected; a far-future due date is only flagged.
const (
	maxCustomerNameLen = 200
	maxEmailLen        = 254
	maxAddressLen      = 500
	maxDescriptionLen  = 500
	maxNotesLen        = 1000

	// BackdateLimitDays is how far in the past an invoice date may lie
	// before it is replaced with the current date.
	BackdateLimitDays = 90

	// DefaultDueDays is the fallback payment term applied when the model
	// emits a due date earlier than the invoice date.
	DefaultDueDays = 30

	// FarFutureDays flags (but does not correct) due dates unreasonably
	// far out; long-term contracts make these plausible.
	FarFutureDays = 365
)

// payloadEnvelope is the shape of a create_invoice action payload.
type payloadEnvelope struct {
	Data *rawData `json:"data"`
}

// rawData keeps numeric and date fields as raw JSON so each one can be
// parsed individually and rejected with a reason naming the field. The
// model emits decimals both as JSON numbers and as quoted strings.
type rawData struct {
	CustomerName    *string       `json:"customer_name"`
	CustomerEmail   *string       `json:"customer_email"`
	CustomerAddress *string       `json:"customer_address"`
	InvoiceDate     *string       `json:"invoice_date"`
	DueDate         *string       `json:"due_date"`
	LineItems       []rawLineItem `json:"line_items"`
	TaxRate         json.RawMessage `json:"tax_rate"`
	Discount        json.RawMessage `json:"discount"`
	Notes           *string       `json:"notes"`
}

type rawLineItem struct {
	Description *string         `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	UnitPrice   json.RawMessage `json:"unit_price"`
	Taxable     *bool           `json:"taxable"`
}

// ParsePayload validates a raw create_invoice payload and returns the
// calculated invoice data, or a *ValidationError describing the first
// problem found. Validation never returns an unexpected error kind: any
// malformed input routes back to conversational repair.
//
// Corrections applied silently (matching the tolerance for stale or skewed
// model output):
//   - an invoice date more than BackdateLimitDays in the past becomes now
//   - a due date before the (possibly corrected) invoice date becomes
//     invoice date + DefaultDueDays
func ParsePayload(raw []byte, now time.Time) (*Data, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalidField("data", "payload is not a valid object")
	}
	if env.Data == nil {
		return nil, missingField("data")
	}
	rd := env.Data

	// Required customer name.
	if rd.CustomerName == nil || strings.TrimSpace(*rd.CustomerName) == "" {
		return nil, missingField("customer_name")
	}
	name := strings.TrimSpace(*rd.CustomerName)
	if utf8.RuneCountInString(name) > maxCustomerNameLen {
		return nil, invalidField("customer_name", "exceeds maximum length")
	}

	// Line items.
	if len(rd.LineItems) == 0 {
		return nil, missingField("line_items")
	}
	items := make([]LineItem, 0, len(rd.LineItems))
	for i, ri := range rd.LineItems {
		item, err := parseLineItem(ri, i)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	// Dates. The invoice date defaults to today when absent; the due date
	// is required.
	today := DateOf(now)
	invoiceDate := today
	if rd.InvoiceDate != nil && strings.TrimSpace(*rd.InvoiceDate) != "" {
		d, err := ParseDate(*rd.InvoiceDate)
		if err != nil {
			return nil, invalidField("invoice_date", "not a valid YYYY-MM-DD date")
		}
		invoiceDate = d
	}
	if rd.DueDate == nil || strings.TrimSpace(*rd.DueDate) == "" {
		return nil, missingField("due_date")
	}
	dueDate, err := ParseDate(*rd.DueDate)
	if err != nil {
		return nil, invalidField("due_date", "not a valid YYYY-MM-DD date")
	}

	// Backdating correction: tolerate clock skew or stale model output
	// instead of discarding an otherwise-good invoice.
	if invoiceDate.Before(today.AddDays(-BackdateLimitDays)) {
		log.Warn().
			Str("original_date", invoiceDate.String()).
			Str("corrected_date", today.String()).
			Msg("invoice date too far in past, corrected to today")
		invoiceDate = today
	}

	// Date-order correction: the model sometimes emits a due date before
	// applying the offset the user asked for.
	if dueDate.Before(invoiceDate) {
		corrected := invoiceDate.AddDays(DefaultDueDays)
		log.Warn().
			Str("invoice_date", invoiceDate.String()).
			Str("original_due_date", dueDate.String()).
			Str("corrected_due_date", corrected.String()).
			Msg("due date before invoice date, corrected")
		dueDate = corrected
	}

	// Far-future due dates are flagged for observability, never corrected.
	if today.AddDays(FarFutureDays).Before(dueDate) {
		log.Warn().Str("due_date", dueDate.String()).Msg("due date more than a year out")
	}

	taxRate, err := parseDecimalOrDefault(rd.TaxRate, "tax_rate")
	if err != nil {
		return nil, err
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, invalidField("tax_rate", "must be a fraction between 0 and 1")
	}
	discount, err := parseDecimalOrDefault(rd.Discount, "discount")
	if err != nil {
		return nil, err
	}
	if discount.IsNegative() {
		return nil, invalidField("discount", "must not be negative")
	}

	d := &Data{
		CustomerName: name,
		InvoiceDate:  invoiceDate,
		DueDate:      dueDate,
		LineItems:    items,
		TaxRate:      taxRate,
		Discount:     discount,
	}
	if rd.CustomerEmail != nil {
		email := strings.TrimSpace(*rd.CustomerEmail)
		if utf8.RuneCountInString(email) > maxEmailLen {
			return nil, invalidField("customer_email", "exceeds maximum length")
		}
		d.CustomerEmail = email
	}
	if rd.CustomerAddress != nil {
		addr := strings.TrimSpace(*rd.CustomerAddress)
		if utf8.RuneCountInString(addr) > maxAddressLen {
			return nil, invalidField("customer_address", "exceeds maximum length")
		}
		d.CustomerAddress = addr
	}
	if rd.Notes != nil {
		notes := strings.TrimSpace(*rd.Notes)
		if utf8.RuneCountInString(notes) > maxNotesLen {
			return nil, invalidField("notes", "exceeds maximum length")
		}
		d.Notes = notes
	}

	d.Recalculate()
	return d, nil
}

func parseLineItem(ri rawLineItem, idx int) (LineItem, error) {
	field := func(name string) string {
		return "line_items[" + strconv.Itoa(idx) + "]." + name
	}
	if ri.Description == nil || strings.TrimSpace(*ri.Description) == "" {
		return LineItem{}, missingField(field("description"))
	}
	desc := strings.TrimSpace(*ri.Description)
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return LineItem{}, invalidField(field("description"), "exceeds maximum length")
	}
	if len(ri.Quantity) == 0 {
		return LineItem{}, missingField(field("quantity"))
	}
	qty, err := parseDecimal(ri.Quantity)
	if err != nil {
		return LineItem{}, invalidField(field("quantity"), "not a valid number")
	}
	if !qty.IsPositive() {
		return LineItem{}, invalidField(field("quantity"), "must be positive")
	}
	if len(ri.UnitPrice) == 0 {
		return LineItem{}, missingField(field("unit_price"))
	}
	price, err := parseDecimal(ri.UnitPrice)
	if err != nil {
		return LineItem{}, invalidField(field("unit_price"), "not a valid number")
	}
	if price.IsNegative() {
		return LineItem{}, invalidField(field("unit_price"), "must not be negative")
	}
	taxable := true
	if ri.Taxable != nil {
		taxable = *ri.Taxable
	}
	return LineItem{Description: desc, Quantity: qty, UnitPrice: price, Taxable: taxable}, nil
}

// parseDecimal accepts both bare JSON numbers and quoted numeric strings.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return decimal.Zero, &ValidationError{Reason: "empty number"}
	}
	return decimal.NewFromString(s)
}

func parseDecimalOrDefault(raw json.RawMessage, field string) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if len(raw) == 0 || s == "null" {
		return decimal.Zero, nil
	}
	v, err := parseDecimal(raw)
	if err != nil {
		return decimal.Zero, invalidField(field, "not a valid number")
	}
	return v, nil
}
