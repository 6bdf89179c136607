package report

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/order-asset-packer/internal/order"
	"github.com/tendant/order-asset-packer/internal/textutil"
)

// TimestampLayout stamps the global report and archive names.
const TimestampLayout = "2006-01-02_15-04-05"

// Per-group report file names.
const (
	GroupOrdersFile     = "Organized_Orders.csv"
	GroupEngravingsFile = "Back_Messages.csv"
)

var (
	OrderHeader = []string{
		"Order ID",
		"Product",
		"Variant",
		"Main Photo Link",
		"Main Photo Status",
		"Polaroid Links",
		"Polaroids Downloaded",
		"Back Engraving Type",
		"Back Engraving",
	}
	SkipHeader      = []string{"order_id", "asset_type", "link", "reason"}
	EngravingHeader = []string{"order_id", "type", "text"}
)

func Timestamp(t time.Time) string { return t.Format(TimestampLayout) }

// GlobalOrdersName is the name of the all-groups order report.
func GlobalOrdersName(ts string) string { return "Organized_Orders_" + ts + ".csv" }

func SkipsName(ts string) string { return "Skipped_Images_" + ts + ".csv" }

// OrderRow flattens o into the column order of OrderHeader.
func OrderRow(o *order.Order) []string {
	return []string{
		o.ID,
		o.ProductName,
		o.Variant,
		o.MainPhotoLink,
		string(o.MainPhotoStatus),
		strings.Join(o.PolaroidLinks, ", "),
		strconv.Itoa(o.PolaroidSuccessCount),
		string(o.EngravingType),
		textutil.StripEmoji(o.EngravingValue),
	}
}

// WriteOrders writes one row per order, in the given order.
func WriteOrders(path string, orders []*order.Order) error {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, OrderRow(o))
	}
	return WriteCSV(path, OrderHeader, rows)
}

// WriteSkips writes the skip report into dir unless skips is empty, and
// returns the path written or "".
func WriteSkips(dir, ts string, skips []order.SkipRecord) (string, error) {
	if len(skips) == 0 {
		return "", nil
	}
	rows := make([][]string, 0, len(skips))
	for _, s := range skips {
		rows = append(rows, []string{s.OrderID, s.AssetType, s.Link, s.Reason})
	}
	path := filepath.Join(dir, SkipsName(ts))
	if err := WriteCSV(path, SkipHeader, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteEngravings writes a group's Back_Messages.csv unless recs is empty.
func WriteEngravings(groupDir string, recs []order.BackEngravingRecord) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.OrderID, string(r.Type), r.Text})
	}
	path := filepath.Join(groupDir, GroupEngravingsFile)
	if err := WriteCSV(path, EngravingHeader, rows); err != nil {
		return "", err
	}
	return path, nil
}
