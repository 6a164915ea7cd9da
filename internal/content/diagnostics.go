package content

import "fmt"

// Reasons attached to dropped elements.
const (
	ReasonMissingLink      = "source has no link"
	ReasonMissingImageURL  = "image block has no url"
	ReasonMissingQuestion  = "faq has no question"
	ReasonInvalidFactCheck = "fact-check status not recognized"
)

// Drop records one element removed during normalization.
type Drop struct {
	Path   string
	Reason string
}

func (d Drop) String() string {
	return fmt.Sprintf("%s: %s", d.Path, d.Reason)
}

// Diagnostics accumulates drops. The lenient normalizers discard it; the
// *Diagnostics variants return it so callers can log counts.
type Diagnostics []Drop

// Count returns the number of drops with the given reason.
func (d Diagnostics) Count(reason string) int {
	n := 0
	for _, drop := range d {
		if drop.Reason == reason {
			n++
		}
	}
	return n
}
