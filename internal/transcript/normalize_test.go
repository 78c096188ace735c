package transcript

import (
	"math"
	"testing"
)

func defaultUnits() Units {
	return Units{Interim: UnitMilliseconds, Final: UnitSeconds}
}

func TestNormalizeInterimMillis(t *testing.T) {
	n := NewNormalizer(defaultUnits())

	ev := Event{Text: "hello", Start: 1000, End: 2500, Final: false}
	got := n.Normalize(ev)

	if got.Start != 1.0 {
		t.Fatalf("start = %v, want 1.0", got.Start)
	}
	if got.End != 2.5 {
		t.Fatalf("end = %v, want 2.5", got.End)
	}
	if got.Unit != UnitSeconds {
		t.Fatalf("unit = %q, want seconds", got.Unit)
	}
}

func TestNormalizeFinalAlreadySeconds(t *testing.T) {
	n := NewNormalizer(defaultUnits())

	ev := Event{Text: "done", Start: 1.0, End: 2.5, Final: true}
	got := n.Normalize(ev)

	if got.Start != 1.0 || got.End != 2.5 {
		t.Fatalf("final event times changed: %v..%v", got.Start, got.End)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(defaultUnits())

	ev := Event{Start: 1234, End: 5678, Final: false}
	once := n.Normalize(ev)
	twice := n.Normalize(once)

	if math.Abs(once.Start-twice.Start) > 1e-9 || math.Abs(once.End-twice.End) > 1e-9 {
		t.Fatalf("normalize not idempotent: %v..%v then %v..%v",
			once.Start, once.End, twice.Start, twice.End)
	}
}

func TestNormalizeLeavesInputUntouched(t *testing.T) {
	n := NewNormalizer(defaultUnits())

	ev := Event{Start: 2000, End: 3000}
	_ = n.Normalize(ev)

	if ev.Start != 2000 || ev.End != 3000 || ev.Unit != "" {
		t.Fatalf("input mutated: %+v", ev)
	}
}

func TestNormalizeDeclaredUnitWins(t *testing.T) {
	// A final event explicitly stamped as milliseconds converts even though
	// the configured final unit is seconds.
	n := NewNormalizer(defaultUnits())

	ev := Event{Start: 500, End: 1500, Final: true, Unit: UnitMilliseconds}
	got := n.Normalize(ev)

	if got.Start != 0.5 || got.End != 1.5 {
		t.Fatalf("declared unit ignored: %v..%v", got.Start, got.End)
	}
}

func TestNormalizeConfigurableFinalUnit(t *testing.T) {
	n := NewNormalizer(Units{Interim: UnitMilliseconds, Final: UnitMilliseconds})

	ev := Event{Start: 1000, End: 4000, Final: true}
	got := n.Normalize(ev)

	if got.Start != 1.0 || got.End != 4.0 {
		t.Fatalf("final ms config not honored: %v..%v", got.Start, got.End)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	if got := SecondsFromMillis(2500); got != 2.5 {
		t.Fatalf("SecondsFromMillis(2500) = %v", got)
	}
	if got := MillisFromSeconds(2.5); got != 2500 {
		t.Fatalf("MillisFromSeconds(2.5) = %v", got)
	}
}
