package risk

import "fmt"

// Verdict is the outcome class of a Decision.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
	VerdictResized  Verdict = "RESIZED"
)

// Decision is the gate's answer to a proposal. It cannot be changed after construction.
type Decision struct {
	verdict  Verdict
	quantity int64
	reason   string
}

// Approved lets the proposal through unchanged.
func Approved(lots int64) Decision {
	return Decision{verdict: VerdictApproved, quantity: lots}
}

// Rejected blocks the proposal.
func Rejected(reason string) Decision {
	return Decision{verdict: VerdictRejected, reason: reason}
}

// Resized lets through a smaller quantity in the proposed direction.
func Resized(lots int64, reason string) Decision {
	return Decision{verdict: VerdictResized, quantity: lots, reason: reason}
}

func (d Decision) Verdict() Verdict { return d.verdict }

// Quantity is the lot count to submit; zero when rejected.
func (d Decision) Quantity() int64 { return d.quantity }

func (d Decision) Reason() string { return d.reason }

// Allowed reports whether anything may be submitted.
func (d Decision) Allowed() bool {
	return d.verdict == VerdictApproved || d.verdict == VerdictResized
}

func (d Decision) String() string {
	switch d.verdict {
	case VerdictApproved:
		return fmt.Sprintf("Approved(%d)", d.quantity)
	case VerdictResized:
		return fmt.Sprintf("Resized(%d, %s)", d.quantity, d.reason)
	case VerdictRejected:
		return fmt.Sprintf("Rejected(%s)", d.reason)
	}
	return "Decision(none)"
}
