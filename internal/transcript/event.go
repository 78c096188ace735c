// Package transcript holds the worker's transcript event model and the
// normalization and filtering rules applied to every vendor utterance
// before it reaches a publisher.
package transcript

// TimeUnit identifies the unit an event's Start/End are expressed in.
type TimeUnit string

const (
	UnitMilliseconds TimeUnit = "ms"
	UnitSeconds      TimeUnit = "s"
)

// UnitFromString maps a validated config value onto a TimeUnit.
func UnitFromString(s string) TimeUnit {
	if s == string(UnitMilliseconds) {
		return UnitMilliseconds
	}
	return UnitSeconds
}

// Event is one utterance flowing through the pipeline. Upstream of the
// Normalizer, Start and End carry whatever unit the vendor used (declared
// by Unit, or implied by finality when Unit is empty); downstream they are
// always seconds.
type Event struct {
	ID         string
	SessionID  string
	UserID     string
	Language   string
	Text       string
	Start      float64
	End        float64
	Confidence *float64
	Final      bool
	Translated bool
	Unit       TimeUnit
}

// Duration returns the utterance length in the event's current unit.
func (e Event) Duration() float64 {
	return e.End - e.Start
}
