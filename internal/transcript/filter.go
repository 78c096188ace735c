package transcript

// Action is the outcome of a gating or filtering decision.
type Action int

const (
	Forward Action = iota
	Suppress
)

func (a Action) String() string {
	if a == Suppress {
		return "suppress"
	}
	return "forward"
}

// Decision reasons, stable because they feed log fields and metric labels.
const (
	ReasonNoConfidence     = "no_confidence"
	ReasonMeetsThreshold   = "meets_threshold"
	ReasonBelowThreshold   = "below_threshold"
	ReasonPartialsDisabled = "partials_disabled"
	ReasonBelowMinLength   = "below_min_length"
)

// Decision pairs an action with the reason behind it.
type Decision struct {
	Action Action
	Reason string
}

func (d Decision) Forwarded() bool {
	return d.Action == Forward
}

// Decide applies the confidence comparison. Events without a confidence
// score always forward; with one, the event forwards exactly when the
// score meets the threshold. Finality plays no part here.
func Decide(confidence *float64, threshold float64) Decision {
	if confidence == nil {
		return Decision{Action: Forward, Reason: ReasonNoConfidence}
	}
	if *confidence >= threshold {
		return Decision{Action: Forward, Reason: ReasonMeetsThreshold}
	}
	return Decision{Action: Suppress, Reason: ReasonBelowThreshold}
}

// Filter holds the confidence floors for interim and final events. Both
// default to the shared threshold; the comparison itself is identical for
// either finality.
type Filter struct {
	interim float64
	final   float64
}

func NewFilter(interim, final float64) Filter {
	return Filter{interim: interim, final: final}
}

// Apply selects the threshold by the event's finality and delegates to
// Decide.
func (f Filter) Apply(ev Event) Decision {
	threshold := f.interim
	if ev.Final {
		threshold = f.final
	}
	return Decide(ev.Confidence, threshold)
}

// Gates is the per-user utterance policy evaluated before the confidence
// filter. Finals always pass; interim events are dropped when the user has
// partials disabled or the utterance is shorter than the minimum length.
// All comparisons happen in seconds, after normalization.
type Gates struct {
	PartialUtterances  bool
	MinUtteranceLength float64
}

func (g Gates) Apply(ev Event) Decision {
	if ev.Final {
		return Decision{Action: Forward}
	}
	if !g.PartialUtterances {
		return Decision{Action: Suppress, Reason: ReasonPartialsDisabled}
	}
	if g.MinUtteranceLength > 0 && ev.Duration() < g.MinUtteranceLength {
		return Decision{Action: Suppress, Reason: ReasonBelowMinLength}
	}
	return Decision{Action: Forward}
}
