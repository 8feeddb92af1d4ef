package logging

import (
	"fmt"
	"strings"

	"github.com/stagewatch/stagewatch/internal/types"
)

// Detector findings are themselves entries; this data key marks them so
// detectors never re-examine their own output.
const detectorKey = "detector"

func isDetectorEntry(e *types.LogEntry) bool {
	if e.Data == nil {
		return false
	}
	_, ok := e.Data[detectorKey]
	return ok
}

// detectDuplicateRegions flags highlighted regions that appear more than
// once within a single UI entry. The region key is (start, end, text);
// host-assigned ids are ignored because a re-render gets a fresh id.
// At most one finding is produced per examined entry. Caller holds the lock.
func (l *Logger) detectDuplicateRegions(e *types.LogEntry) []*types.LogEntry {
	if e.Category != types.CategoryUI || e.Data == nil {
		return nil
	}
	ui, err := e.GetUIData()
	if err != nil || len(ui.Regions) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, r := range ui.Regions {
		counts[r.Key()]++
	}

	// Each duplicated key is reported once, referencing its first occurrence.
	reported := make(map[string]bool)
	var dupKeys []string
	var dupRegions []types.HighlightRegion
	for _, r := range ui.Regions {
		key := r.Key()
		if counts[key] > 1 && !reported[key] {
			reported[key] = true
			dupKeys = append(dupKeys, key)
			dupRegions = append(dupRegions, r)
		}
	}
	if len(dupKeys) == 0 {
		return nil
	}

	regionData := make([]interface{}, len(dupRegions))
	for i, r := range dupRegions {
		regionData[i] = map[string]interface{}{
			"start": r.Start, "end": r.End, "text": r.Text,
		}
	}
	return []*types.LogEntry{{
		Severity:      types.SeverityWarn,
		Category:      types.CategoryUI,
		Component:     "logger",
		Action:        "duplicate_processing",
		Message:       fmt.Sprintf("duplicate processing: %d region(s) rendered more than once", len(dupKeys)),
		CorrelationID: e.CorrelationID,
		Data: map[string]interface{}{
			detectorKey:    "duplicate_effect",
			"source_entry": e.ID,
			"keys":         toInterfaceSlice(dupKeys),
			"regions":      regionData,
		},
	}}
}

// detectSuccessGap flags INFO entries that textually claim success while a
// UI-category error happened inside the lookback window. The keyword list
// and window are heuristic and configurable. Caller holds the lock.
func (l *Logger) detectSuccessGap(e *types.LogEntry) []*types.LogEntry {
	if e.Severity != types.SeverityInfo || l.lastUIError.IsZero() {
		return nil
	}
	msg := strings.ToLower(e.Message)
	claimed := false
	for _, kw := range l.cfg.SuccessKeywords {
		if strings.Contains(msg, strings.ToLower(kw)) {
			claimed = true
			break
		}
	}
	if !claimed {
		return nil
	}
	if e.Timestamp.Sub(l.lastUIError) > l.cfg.GapWindow {
		return nil
	}

	return []*types.LogEntry{{
		Severity:      types.SeverityError,
		Category:      types.CategoryError,
		Component:     "logger",
		Action:        "success_failure_gap",
		Message:       "reported success despite visible failure in the preceding window",
		CorrelationID: e.CorrelationID,
		Data: map[string]interface{}{
			detectorKey:       "success_failure_gap",
			"source_entry":    e.ID,
			"ui_error_at":     l.lastUIError,
			"window_seconds":  l.cfg.GapWindow.Seconds(),
			"claimed_message": e.Message,
		},
	}}
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
