// Package extract turns a tabular order export into aggregated orders and
// buckets them into product groups.
package extract

import (
	"fmt"
	"strings"

	"github.com/tendant/order-asset-packer/internal/order"
)

// DefaultPrefix is the order-id prefix kept when none is configured.
const DefaultPrefix = "#ER"

// Columns names the export headers the extractor reads.
type Columns struct {
	OrderID    string
	Properties string
	Title      string
	Variant    string
}

// DefaultColumns matches a Shopify line-item export.
var DefaultColumns = Columns{
	OrderID:    "Name",
	Properties: "Line: Properties",
	Title:      "Line: Title",
	Variant:    "Line: Variant Title",
}

func (c Columns) required() []string {
	return []string{c.OrderID, c.Properties, c.Title, c.Variant}
}

// Table is a header-keyed view over an export.
type Table struct {
	Header []string
	Rows   []map[string]string
}

// MissingColumnError reports required headers absent from the input.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Extract folds the table's line items into one order per order id, keeping
// only ids that start with prefix. Orders come back in first-appearance order.
func Extract(t *Table, prefix string) ([]*order.Order, error) {
	return ExtractWith(t, prefix, DefaultColumns)
}

// ExtractWith is Extract with custom column names.
func ExtractWith(t *Table, prefix string, cols Columns) ([]*order.Order, error) {
	if err := checkColumns(t.Header, cols); err != nil {
		return nil, err
	}

	byID := make(map[string]*order.Order)
	var orders []*order.Order

	for _, row := range t.Rows {
		id := strings.TrimSpace(row[cols.OrderID])
		if id == "" || !strings.HasPrefix(id, prefix) {
			continue
		}
		o, ok := byID[id]
		if !ok {
			o = order.New(id)
			byID[id] = o
			orders = append(orders, o)
		}
		applyLineItem(o, row, cols)
	}
	return orders, nil
}

// Filter returns the subset of rows whose order id starts with prefix.
func Filter(t *Table, prefix string, cols Columns) *Table {
	out := &Table{Header: t.Header}
	for _, row := range t.Rows {
		if strings.HasPrefix(strings.TrimSpace(row[cols.OrderID]), prefix) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func checkColumns(header []string, cols Columns) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, name := range cols.required() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

// applyLineItem merges one line item into the order. Later photo rows win
// over earlier ones for the product, variant and photo link.
func applyLineItem(o *order.Order, row map[string]string, cols Columns) {
	title := strings.TrimSpace(row[cols.Title])
	variant := strings.TrimSpace(row[cols.Variant])
	if o.ProductName == "" && o.Variant == "" {
		o.ProductName = title
		o.Variant = variant
	}

	for _, p := range ParseProperties(row[cols.Properties]) {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		value := strings.TrimSpace(p.Value)
		if value == "" {
			continue
		}
		switch {
		case key == "photo" || key == "photo link":
			o.MainPhotoLink = value
			o.ProductName = title
			o.Variant = variant
		case key == "polaroid" || key == "your polaroid image":
			o.PolaroidLinks = append(o.PolaroidLinks, value)
		case strings.Contains(key, "back message"):
			o.EngravingValue = value
			o.EngravingType = order.EngravingMessage
		case strings.Contains(key, "spotify") || strings.Contains(key, "music"):
			if o.EngravingType != order.EngravingMessage {
				o.EngravingValue = value
				o.EngravingType = order.EngravingMusicLink
			}
		}
	}
}
