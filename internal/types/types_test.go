package types

import (
	"testing"
	"time"
)

func TestSeverityAtLeast(t *testing.T) {
	cases := []struct {
		sev, min Severity
		want     bool
	}{
		{SeverityError, SeverityWarn, true},
		{SeverityWarn, SeverityWarn, true},
		{SeverityInfo, SeverityWarn, false},
		{SeverityTrace, SeverityDebug, false},
		{SeverityDebug, SeverityTrace, true},
	}
	for _, c := range cases {
		if got := c.sev.AtLeast(c.min); got != c.want {
			t.Errorf("%s.AtLeast(%s) = %t, want %t", c.sev, c.min, got, c.want)
		}
	}
}

func TestHighlightRegionKeyIgnoresNothingButPosition(t *testing.T) {
	a := HighlightRegion{Start: 0, End: 5, Text: "a"}
	b := HighlightRegion{Start: 0, End: 5, Text: "a"}
	c := HighlightRegion{Start: 0, End: 5, Text: "b"}

	if a.Key() != b.Key() {
		t.Error("Expected identical regions to share a key")
	}
	if a.Key() == c.Key() {
		t.Error("Expected different text to change the key")
	}
	if a.Key() != "0:5:a" {
		t.Errorf("Expected key 0:5:a, got %q", a.Key())
	}
}

func TestFailureClassification(t *testing.T) {
	cases := []struct {
		ftype    FailureType
		severity FailureSeverity
		assignee Assignee
	}{
		{FailureConnectionLost, FailureSeverityCritical, AssigneeAuto},
		{FailureStageBypass, FailureSeverityHigh, AssigneeReview},
		{FailureConstraintProcessing, FailureSeverityHigh, AssigneeReview},
		{FailureMissingAttribution, FailureSeverityHigh, AssigneeReview},
		{FailureStalledWorkflow, FailureSeverityMedium, AssigneeReview},
		{FailureDuplicateEffect, FailureSeverityMedium, AssigneeReview},
	}
	for _, c := range cases {
		sev, who := ClassifyFailure(c.ftype)
		if sev != c.severity {
			t.Errorf("%s: expected severity %s, got %s", c.ftype, c.severity, sev)
		}
		if who != c.assignee {
			t.Errorf("%s: expected assignee %s, got %s", c.ftype, c.assignee, who)
		}
	}
}

func TestClassifyUnknownFailureType(t *testing.T) {
	sev, who := ClassifyFailure(FailureType("made_up"))
	if sev != FailureSeverityMedium || who != AssigneeReview {
		t.Errorf("Expected medium/review fallback, got %s/%s", sev, who)
	}
	if KnownFailureType(FailureType("made_up")) {
		t.Error("Expected made_up not known")
	}
	if !KnownFailureType(FailureConnectionLost) {
		t.Error("Expected connection_lost known")
	}
}

func TestNewFailureFillsDerivedFields(t *testing.T) {
	f := NewFailure("editorial", FailureStageBypass, "skipped", map[string]interface{}{"k": "v"})

	if f.ID == "" {
		t.Error("Expected generated id")
	}
	if f.Severity != FailureSeverityHigh || f.Assignee != AssigneeReview {
		t.Errorf("Expected derived class, got %s/%s", f.Severity, f.Assignee)
	}
	if f.Recommendation == "" {
		t.Error("Expected fixed recommendation text")
	}
	if time.Since(f.Timestamp) > time.Minute {
		t.Error("Expected fresh timestamp")
	}
}

func TestWorkflowRecordClean(t *testing.T) {
	rec := &WorkflowRecord{Completed: true}
	if !rec.Clean() {
		t.Error("Expected completed record with no issues to be clean")
	}
	rec.Issues = []string{"stage skipped"}
	if rec.Clean() {
		t.Error("Expected issues to make the record unclean")
	}
	stalled := &WorkflowRecord{Stalled: true}
	if stalled.Clean() {
		t.Error("Expected stalled record to be unclean")
	}
}

func TestConsoleDataRoundTrip(t *testing.T) {
	e := &LogEntry{}
	in := ConsoleData{Args: []string{"a", "b"}, Stack: []string{"frame1"}, Forwarded: true}
	if err := e.SetConsoleData(in); err != nil {
		t.Fatalf("SetConsoleData: %v", err)
	}

	out, err := e.GetConsoleData()
	if err != nil {
		t.Fatalf("GetConsoleData: %v", err)
	}
	if len(out.Args) != 2 || out.Args[1] != "b" {
		t.Errorf("Expected args preserved, got %v", out.Args)
	}
	if !out.Forwarded {
		t.Error("Expected forwarded flag preserved")
	}
}
