package webhook

// OutcomeKind classifies how a dispatched update ended.
type OutcomeKind int

const (
	// OutcomeIgnored means the update carried nothing the bridge acts on.
	OutcomeIgnored OutcomeKind = iota
	// OutcomeHandled means the update was fully processed.
	OutcomeHandled
	// OutcomeDegraded means the user got an answer but some step failed.
	OutcomeDegraded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeHandled:
		return "handled"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "ignored"
	}
}

// Path is the branch of the dispatcher an update went through.
type Path string

const (
	PathNone     Path = "none"
	PathMessage  Path = "message"
	PathCallback Path = "callback_query"
)

// Outcome is the business result of one update. The HTTP layer acknowledges
// every outcome the same way; the Outcome only feeds logs and tests.
type Outcome struct {
	Kind OutcomeKind
	Path Path
	// Text is what was sent (or answered) to the chat user.
	Text string
	Err  error
}
