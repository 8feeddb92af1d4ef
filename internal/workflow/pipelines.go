package workflow

import (
	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/types"
)

// Pipeline names.
const (
	PipelineEditorial   = "editorial"
	PipelineAttribution = "attribution"
	PipelineSessionSync = "session-sync"
)

// EditorialPipeline watches the edit-request flow: a request must pass
// through the processing engine before its effect lands in the document.
func EditorialPipeline() Definition {
	return Definition{
		Name: PipelineEditorial,
		Stages: []string{
			"request_detected",
			"engine_invoked",
			"result_received",
			"effect_applied",
		},
		TriggerPhrases: []string{
			"edit request",
			"rewrite requested",
			"processing request",
		},
		StageSignals: map[string][]string{
			"request_detected": {"request detected", "request queued"},
			"engine_invoked":   {"engine invoked", "sending to engine", "dispatching request"},
			"result_received":  {"result received", "engine responded", "response received"},
			"effect_applied":   {"effect applied", "changes applied", "document updated"},
		},
		BypassPhrases: []string{
			"bypassing editorial",
			"skipping engine",
			"direct apply",
			"applied without review",
		},
		FailurePhrases: []string{
			"constraint violation",
			"constraint processing failed",
			"rule evaluation error",
		},
		SuccessPhrases: []string{
			"editorial pipeline complete",
		},
		MutationPhrases: []string{
			"please rewrite",
			"please edit",
		},
		Probes:          []string{host.ProbeEngineReachable, host.ProbeOperationActive},
		BypassFailure:   types.FailureStageBypass,
		InternalFailure: types.FailureConstraintProcessing,
	}
}

// AttributionPipeline watches that every produced change ends up with a
// visible attribution marker.
func AttributionPipeline() Definition {
	return Definition{
		Name: PipelineAttribution,
		Stages: []string{
			"change_produced",
			"attribution_requested",
			"marker_rendered",
		},
		TriggerPhrases: []string{
			"change produced",
			"attributing change",
		},
		StageSignals: map[string][]string{
			"change_produced":       {"change produced", "diff computed"},
			"attribution_requested": {"attribution requested", "requesting attribution"},
			"marker_rendered":       {"marker rendered", "attribution rendered", "highlight placed"},
		},
		BypassPhrases: []string{
			"skipping attribution",
			"unattributed change",
			"no attribution",
		},
		FailurePhrases: []string{
			"attribution failed",
			"marker render error",
		},
		SuccessPhrases: []string{
			"attribution complete",
		},
		Probes:          []string{host.ProbeSessionActive},
		BypassFailure:   types.FailureMissingAttribution,
		InternalFailure: types.FailureMissingAttribution,
	}
}

// SessionSyncPipeline watches that an opened session reaches the backend
// and is acknowledged.
func SessionSyncPipeline() Definition {
	return Definition{
		Name: PipelineSessionSync,
		Stages: []string{
			"session_opened",
			"sync_started",
			"sync_acknowledged",
		},
		TriggerPhrases: []string{
			"session opened",
			"opening session",
		},
		StageSignals: map[string][]string{
			"session_opened":    {"session opened", "session created"},
			"sync_started":      {"sync started", "syncing session"},
			"sync_acknowledged": {"sync acknowledged", "sync complete", "session synced"},
		},
		BypassPhrases: []string{
			"skipping sync",
			"offline mode forced",
		},
		FailurePhrases: []string{
			"sync failed",
			"session desync",
			"connection refused",
		},
		SuccessPhrases: []string{
			"session sync complete",
		},
		Probes:          []string{host.ProbeEngineReachable, host.ProbeSessionActive},
		BypassFailure:   types.FailureStageBypass,
		InternalFailure: types.FailureConnectionLost,
	}
}

// AllPipelines returns the standard monitored pipeline set.
func AllPipelines() []Definition {
	return []Definition{
		EditorialPipeline(),
		AttributionPipeline(),
		SessionSyncPipeline(),
	}
}
