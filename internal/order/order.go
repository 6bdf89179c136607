// internal/order/order.go
package order

import "strconv"

// EngravingType classifies what a customer asked to be engraved on the back.
type EngravingType string

const (
	EngravingNone      EngravingType = "None"
	EngravingMessage   EngravingType = "Message"
	EngravingMusicLink EngravingType = "MusicLink"
)

// PhotoStatus represents the lifecycle state of an order's main photo.
type PhotoStatus string

const (
	PhotoPending PhotoStatus = "Pending"
	PhotoSuccess PhotoStatus = "Success"
	PhotoFailed  PhotoStatus = "Failed"
	PhotoInvalid PhotoStatus = "Invalid"
)

// Asset labels used in skip records.
const (
	AssetMainPhoto = "Main Photo"
	assetPolaroid  = "Polaroid"
)

// Order is one customer order folded from all of its line items.
//
// The fetch phase mutates MainPhotoStatus and PolaroidSuccessCount; only the
// worker that owns the order touches them.
type Order struct {
	ID                   string
	ProductName          string
	Variant              string
	MainPhotoLink        string
	PolaroidLinks        []string
	EngravingType        EngravingType
	EngravingValue       string
	MainPhotoStatus      PhotoStatus
	PolaroidSuccessCount int
}

func New(id string) *Order {
	return &Order{
		ID:              id,
		EngravingType:   EngravingNone,
		MainPhotoStatus: PhotoPending,
	}
}

// HasEngraving reports whether the order carries back-engraving text.
func (o *Order) HasEngraving() bool {
	return o.EngravingType != EngravingNone && o.EngravingValue != ""
}

// SkipRecord notes an asset that could not be fetched.
type SkipRecord struct {
	OrderID   string
	AssetType string
	Link      string
	Reason    string
}

// PolaroidAsset returns the skip label for the n-th (1-based) polaroid.
func PolaroidAsset(n int) string {
	return assetPolaroid + " " + strconv.Itoa(n)
}

// BackEngravingRecord is one entry in the back-engraving report.
type BackEngravingRecord struct {
	OrderID string
	Type    EngravingType
	Text    string
}
