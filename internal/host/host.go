// Package host defines the interfaces the harness consumes from the
// monitored application. The host is an external collaborator: it supplies
// a diagnostic print channel, a stream of UI mutation notifications, a
// readable view of observable state, and a small set of named capability
// probes. The harness only observes through these interfaces; it never
// drives the host.
package host

import (
	"time"

	"github.com/stagewatch/stagewatch/internal/types"
)

// PrintFunc is one severity level of the host's diagnostic print capability.
type PrintFunc func(args ...interface{})

// Console is the host's diagnostic channel as an explicit capability object.
// The interceptor swaps handlers on start and restores the originals on
// stop; the host keeps calling through whatever handler is installed.
type Console interface {
	// Levels returns the severity levels the console supports.
	Levels() []types.Severity

	// Handler returns the currently installed handler for a level.
	Handler(level types.Severity) PrintFunc

	// SetHandler installs a handler for a level. Returns an error if the
	// level is not supported.
	SetHandler(level types.Severity, fn PrintFunc) error
}

// MutationKind describes what changed in the host's UI tree.
type MutationKind string

const (
	MutationAttach    MutationKind = "attach"
	MutationDetach    MutationKind = "detach"
	MutationAttribute MutationKind = "attribute"
	MutationContent   MutationKind = "content"
)

// Mutation is one change notification from the host's UI tree.
type Mutation struct {
	// Kind is the change type
	Kind MutationKind
	// NodePath is the slash-separated path of the affected node
	NodePath string
	// NodeClass is the node's class/marker string
	NodeClass string
	// Text is the node's text content (attach/content changes)
	Text string
	// Attr and Value describe an attribute change
	Attr  string
	Value string
	// Timestamp is when the host observed the change
	Timestamp time.Time
}

// MutationStream delivers filtered change notifications from the host's UI
// tree. Subscribe returns an unsubscribe function; callbacks run on the
// host's notification ticks.
type MutationStream interface {
	Subscribe(fn func(Mutation)) (unsubscribe func())
}

// StateReader exposes the host state the state monitor samples. Each
// accessor may fail independently; a failed field defaults to a neutral
// value and the capture proceeds.
type StateReader interface {
	// PanelVisible reports whether the observed panel is visible.
	PanelVisible() (bool, error)

	// IndicatorActive reports the master on/off indicator state.
	IndicatorActive() (bool, error)

	// Highlights returns the currently rendered highlight regions.
	Highlights() ([]types.HighlightRegion, error)

	// DocumentMetrics returns current document-size measurements.
	DocumentMetrics() (types.DocMetrics, error)
}

// Probe is one named host capability check, e.g. "is the processing engine
// reachable". Probes are optional: a pipeline definition may reference a
// probe the host does not expose, in which case the check is skipped.
type Probe func() (bool, error)

// ProbeSet maps probe names to checks. A nil or missing probe is treated
// as "capability absent", not as a failure.
type ProbeSet map[string]Probe

// Well-known probe names used by the built-in pipeline definitions.
const (
	ProbeEngineReachable = "engine_reachable"
	ProbeSessionActive   = "session_active"
	ProbeOperationActive = "operation_in_flight"
)
