package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/order-asset-packer/internal/order"
)

func TestGroupKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Photo Necklace", "Photo_Necklace"},
		{"  photo   necklace ", "Photo_Necklace"},
		{"Polaroid (Mini) - Deluxe!", "Polaroid_Mini_-_Deluxe"},
		{"heart shaped LOCKET", "Heart_Shaped_Locket"},
		{"💖✨", UnknownGroup},
		{"", UnknownGroup},
		{"Collier Été", "Collier_Été"},
		{"foo_bar baz", "Foo_Bar_Baz"},
		{"SNAKE_case", "Snake_Case"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupKey(tt.in))
		})
	}
}

func TestGroupKeepsOrderWithinGroup(t *testing.T) {
	mk := func(id, product string) *order.Order {
		o := order.New(id)
		o.ProductName = product
		return o
	}
	orders := []*order.Order{
		mk("#ER3", "Photo Necklace"),
		mk("#ER1", "bracelet"),
		mk("#ER2", "photo necklace"),
		mk("#ER4", ""),
	}

	groups, keys := Group(orders)
	require.Equal(t, []string{"Bracelet", "Photo_Necklace", UnknownGroup}, keys)
	require.Len(t, groups["Photo_Necklace"], 2)
	assert.Equal(t, "#ER3", groups["Photo_Necklace"][0].ID)
	assert.Equal(t, "#ER2", groups["Photo_Necklace"][1].ID)
	assert.Equal(t, "#ER4", groups[UnknownGroup][0].ID)
}
