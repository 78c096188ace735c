package transcript

// Units declares which unit the vendor uses for utterance times on interim
// and final events. The vendor reports interim times in milliseconds and
// final times in seconds; both defaults are configurable in case that ever
// changes upstream.
type Units struct {
	Interim TimeUnit
	Final   TimeUnit
}

// ForFinality returns the declared unit for an event of the given finality.
func (u Units) ForFinality(final bool) TimeUnit {
	if final {
		return u.Final
	}
	return u.Interim
}

// Normalizer rewrites vendor events so that every time field downstream is
// expressed in seconds.
type Normalizer struct {
	units Units
}

func NewNormalizer(units Units) *Normalizer {
	return &Normalizer{units: units}
}

// Normalize returns a copy of ev with Start and End in seconds. Conversion
// keys off the event's declared unit, never off value magnitude, so feeding
// an already-normalized event back in changes nothing.
func (n *Normalizer) Normalize(ev Event) Event {
	unit := ev.Unit
	if unit == "" {
		unit = n.units.ForFinality(ev.Final)
	}
	if unit == UnitMilliseconds {
		ev.Start = SecondsFromMillis(ev.Start)
		ev.End = SecondsFromMillis(ev.End)
	}
	ev.Unit = UnitSeconds
	return ev
}

// SecondsFromMillis converts a millisecond value to seconds.
func SecondsFromMillis(v float64) float64 {
	return v / 1000
}

// MillisFromSeconds converts a second value to whole milliseconds, used at
// the platform wire boundary.
func MillisFromSeconds(v float64) int64 {
	return int64(v * 1000)
}
