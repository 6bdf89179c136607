package fetch

import (
	"sort"
	"sync"

	"github.com/tendant/order-asset-packer/internal/order"
)

// Tally collects the results workers share within a run: success counters,
// skip records and back-engraving records. Every method is safe for
// concurrent use. Snapshots are ordered by the order's position in the run
// and then by asset number, independent of completion order.
type Tally struct {
	mu              sync.Mutex
	position        map[string]int
	mainSuccess     int
	polaroidSuccess int
	skips           []skipEntry
	engravings      []engravingEntry
}

type skipEntry struct {
	pos, seq int
	rec      order.SkipRecord
}

type engravingEntry struct {
	pos int
	rec order.BackEngravingRecord
}

// NewTally indexes orders so snapshots can be sorted by input position.
func NewTally(orders []*order.Order) *Tally {
	pos := make(map[string]int, len(orders))
	for i, o := range orders {
		pos[o.ID] = i
	}
	return &Tally{position: pos}
}

func (t *Tally) AddMainSuccess() {
	t.mu.Lock()
	t.mainSuccess++
	t.mu.Unlock()
}

func (t *Tally) AddPolaroidSuccess() {
	t.mu.Lock()
	t.polaroidSuccess++
	t.mu.Unlock()
}

// Skip records an asset that could not be fetched. seq is 0 for the main
// photo and n for polaroid n.
func (t *Tally) Skip(rec order.SkipRecord, seq int) {
	t.mu.Lock()
	t.skips = append(t.skips, skipEntry{pos: t.positionOf(rec.OrderID), seq: seq, rec: rec})
	t.mu.Unlock()
}

func (t *Tally) AddEngraving(rec order.BackEngravingRecord) {
	t.mu.Lock()
	t.engravings = append(t.engravings, engravingEntry{pos: t.positionOf(rec.OrderID), rec: rec})
	t.mu.Unlock()
}

// Counts returns the main-photo and polaroid success counters.
func (t *Tally) Counts() (mainPhotos, polaroids int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mainSuccess, t.polaroidSuccess
}

func (t *Tally) Skips() []order.SkipRecord {
	t.mu.Lock()
	entries := append([]skipEntry(nil), t.skips...)
	t.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].pos != entries[j].pos {
			return entries[i].pos < entries[j].pos
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]order.SkipRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

func (t *Tally) Engravings() []order.BackEngravingRecord {
	t.mu.Lock()
	entries := append([]engravingEntry(nil), t.engravings...)
	t.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	out := make([]order.BackEngravingRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// positionOf must be called with mu held.
func (t *Tally) positionOf(id string) int {
	if p, ok := t.position[id]; ok {
		return p
	}
	return len(t.position)
}
