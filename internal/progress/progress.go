// Package progress defines the listener a pipeline run reports to.
//
// A run reports at a fixed set of points, never per file:
//
//	read input      5
//	filter          8
//	parse          12
//	each group     12..85, proportional to groups completed
//	build archive  98
//	done          100
//	error          message only
package progress

import "fmt"

// Fixed percentages for the pipeline call points.
const (
	ReadInput  = 5.0
	Filter     = 8.0
	Parse      = 12.0
	GroupsDone = 85.0
	Archive    = 98.0
	Done       = 100.0
)

// Reporter receives phase updates. A nil percent carries a message only.
type Reporter interface {
	Report(label string, percent *float64)
}

// Func adapts a plain function to Reporter.
type Func func(label string, percent *float64)

func (f Func) Report(label string, percent *float64) { f(label, percent) }

// Nop discards every update.
var Nop Reporter = Func(func(string, *float64) {})

// Multi fans updates out to every reporter in order.
func Multi(reporters ...Reporter) Reporter {
	return Func(func(label string, percent *float64) {
		for _, r := range reporters {
			if r != nil {
				r.Report(label, percent)
			}
		}
	})
}

// Pct returns a pointer for use as a Report percent.
func Pct(v float64) *float64 { return &v }

// GroupPercent spreads groups evenly between Parse and GroupsDone.
// done is the number of groups completed so far.
func GroupPercent(done, total int) float64 {
	if total <= 0 {
		return GroupsDone
	}
	return Parse + (GroupsDone-Parse)*float64(done)/float64(total)
}

// GroupLabel is the message reported when a product group finishes.
func GroupLabel(group string, done, total int) string {
	return fmt.Sprintf("Processed %s (%d/%d)", group, done, total)
}
