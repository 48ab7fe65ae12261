package analysis

import "github.com/TariqKichawele/BrightData/pkg/models"

// Kind tags the result of one analysis run.
type Kind int

const (
	OutcomeOK Kind = iota
	OutcomeNotFound
	OutcomeMissingResults
	OutcomeValidationFailed
	OutcomeExternalCallFailed
	OutcomeStoreFailed
	OutcomePanicked
)

func (k Kind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeMissingResults:
		return "missing_results"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeExternalCallFailed:
		return "external_call_failed"
	case OutcomeStoreFailed:
		return "store_failed"
	case OutcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// Outcome is returned by Engine.Run instead of an error.
//
// Report is set only for OutcomeOK. Detail is the message recorded on the job
// when the run failed. RecordErr is set when marking the job failed itself
// failed; it never replaces Err.
type Outcome struct {
	Kind      Kind
	Report    *models.Report
	Detail    string
	Err       error
	RecordErr error
}

func (o Outcome) OK() bool { return o.Kind == OutcomeOK }
