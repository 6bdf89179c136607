package extract

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tendant/order-asset-packer/internal/order"
)

// UnknownGroup holds orders whose product name normalizes to nothing.
const UnknownGroup = "Unknown"

var (
	reGroupStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// GroupKey normalizes a product name into a directory-safe group name.
func GroupKey(productName string) string {
	s := reGroupStrip.ReplaceAllString(productName, "")
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	if s == "" {
		return UnknownGroup
	}
	// underscores count as word breaks, so "foo_bar" becomes "Foo_Bar"
	caser := cases.Title(language.English)
	parts := strings.Split(strings.ReplaceAll(s, " ", "_"), "_")
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return strings.Join(parts, "_")
}

// Group buckets orders by GroupKey. Keys come back sorted; orders keep their
// input order within a group.
func Group(orders []*order.Order) (map[string][]*order.Order, []string) {
	groups := make(map[string][]*order.Order)
	for _, o := range orders {
		key := GroupKey(o.ProductName)
		groups[key] = append(groups[key], o)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}
