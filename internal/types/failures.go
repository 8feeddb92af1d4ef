package types

import (
	"time"

	"github.com/google/uuid"
)

// FailureType classifies a detected anomaly. The set is closed: severity,
// assignee, and recommendation are all derived from the type, never chosen
// ad hoc by the detecting monitor.
type FailureType string

const (
	// FailureConnectionLost indicates a required host capability became unreachable
	FailureConnectionLost FailureType = "connection_lost"
	// FailureStageBypass indicates a required pipeline stage was skipped
	FailureStageBypass FailureType = "stage_bypass"
	// FailureConstraintProcessing indicates the processing engine rejected or mangled a request
	FailureConstraintProcessing FailureType = "constraint_processing_failure"
	// FailureMissingAttribution indicates visible effects without attribution state
	FailureMissingAttribution FailureType = "missing_attribution"
	// FailureStalledWorkflow indicates a workflow that never reached its terminal stage
	FailureStalledWorkflow FailureType = "stalled_workflow"
	// FailureDuplicateEffect indicates the same visual effect was applied more than once
	FailureDuplicateEffect FailureType = "duplicate_effect"
)

// FailureSeverity represents the severity of a detected anomaly.
type FailureSeverity string

const (
	FailureSeverityLow      FailureSeverity = "low"
	FailureSeverityMedium   FailureSeverity = "medium"
	FailureSeverityHigh     FailureSeverity = "high"
	FailureSeverityCritical FailureSeverity = "critical"
)

// Assignee categorizes who handles a failure.
type Assignee string

const (
	// AssigneeAuto marks failures the harness can recover from itself
	AssigneeAuto Assignee = "auto"
	// AssigneeReview marks failures that need human review
	AssigneeReview Assignee = "review"
)

// failureClass fixes severity, assignee, and recommendation per type.
// Connection loss is recoverable by the harness; anything touching
// attribution or visual correctness goes to human review.
type failureClass struct {
	severity       FailureSeverity
	assignee       Assignee
	recommendation string
}

var failureClasses = map[FailureType]failureClass{
	FailureConnectionLost: {
		severity:       FailureSeverityCritical,
		assignee:       AssigneeAuto,
		recommendation: "Reconnect to the processing engine and re-run the capability probes",
	},
	FailureStageBypass: {
		severity:       FailureSeverityHigh,
		assignee:       AssigneeReview,
		recommendation: "Inspect why the required processing stage was skipped for this request",
	},
	FailureConstraintProcessing: {
		severity:       FailureSeverityHigh,
		assignee:       AssigneeReview,
		recommendation: "Review constraint-processing errors in the console log for this workflow",
	},
	FailureMissingAttribution: {
		severity:       FailureSeverityHigh,
		assignee:       AssigneeReview,
		recommendation: "Verify attribution state propagates to rendered highlights",
	},
	FailureStalledWorkflow: {
		severity:       FailureSeverityMedium,
		assignee:       AssigneeReview,
		recommendation: "Check for dropped signals between pipeline stages; the workflow never finished",
	},
	FailureDuplicateEffect: {
		severity:       FailureSeverityMedium,
		assignee:       AssigneeReview,
		recommendation: "Deduplicate highlight application; the same region was rendered twice",
	},
}

// KnownFailureType reports whether t is in the closed set.
func KnownFailureType(t FailureType) bool {
	_, ok := failureClasses[t]
	return ok
}

// ClassifyFailure returns the fixed severity and assignee for a failure type.
// Unknown types classify as medium/review so nothing silently disappears.
func ClassifyFailure(t FailureType) (FailureSeverity, Assignee) {
	if c, ok := failureClasses[t]; ok {
		return c.severity, c.assignee
	}
	return FailureSeverityMedium, AssigneeReview
}

// RecommendationFor returns the fixed recommendation text for a failure type.
func RecommendationFor(t FailureType) string {
	return failureClasses[t].recommendation
}

// Failure is a classified anomaly recorded by a monitor. Failures are
// appended to the detecting monitor's bounded history and read, never
// mutated, by the report generator.
type Failure struct {
	// ID is the unique identifier for this failure
	ID string `json:"id"`
	// Timestamp is when the anomaly was detected
	Timestamp time.Time `json:"timestamp"`
	// Monitor names the monitor that detected the anomaly
	Monitor string `json:"monitor"`
	// Type is the anomaly classification
	Type FailureType `json:"type"`
	// Severity is derived from Type
	Severity FailureSeverity `json:"severity"`
	// Assignee is derived from Type
	Assignee Assignee `json:"assignee"`
	// Message is a human-readable description
	Message string `json:"message"`
	// Context contains structured supporting data
	Context map[string]interface{} `json:"context,omitempty"`
	// Recommendation is the fixed remediation text for this type
	Recommendation string `json:"recommendation,omitempty"`
}

// NewFailure builds a failure with severity, assignee, and recommendation
// derived from the type.
func NewFailure(monitor string, t FailureType, message string, context map[string]interface{}) *Failure {
	severity, assignee := ClassifyFailure(t)
	return &Failure{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		Monitor:        monitor,
		Type:           t,
		Severity:       severity,
		Assignee:       assignee,
		Message:        message,
		Context:        context,
		Recommendation: RecommendationFor(t),
	}
}
