package progress

import (
	"math"
	"testing"
)

func TestGroupPercent(t *testing.T) {
	if got := GroupPercent(0, 4); got != Parse {
		t.Fatalf("GroupPercent(0,4) = %v, want %v", got, Parse)
	}
	if got := GroupPercent(4, 4); got != GroupsDone {
		t.Fatalf("GroupPercent(4,4) = %v, want %v", got, GroupsDone)
	}
	if got := GroupPercent(2, 4); math.Abs(got-48.5) > 1e-9 {
		t.Fatalf("GroupPercent(2,4) = %v, want 48.5", got)
	}
	if got := GroupPercent(0, 0); got != GroupsDone {
		t.Fatalf("GroupPercent with no groups = %v", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b []string
	r := Multi(
		Func(func(label string, _ *float64) { a = append(a, label) }),
		nil,
		Func(func(label string, p *float64) {
			if p != nil {
				b = append(b, label)
			}
		}),
	)
	r.Report("one", Pct(5))
	r.Report("boom", nil)

	if len(a) != 2 || len(b) != 1 || b[0] != "one" {
		t.Fatalf("unexpected fan-out: a=%v b=%v", a, b)
	}
}
