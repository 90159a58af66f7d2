package costtrack

import (
	"math"
	"testing"
)

func TestTrack_SingleCall(t *testing.T) {
	tr := NewTracker()
	tr.Track(APIGeminiFree, "stage2", true, 0.0, "")

	sum := tr.Summary()
	if sum.Calls != 1 {
		t.Fatalf("expected 1 call, got %d", sum.Calls)
	}
	if sum.FreeCalls != 1 || sum.PaidCalls != 0 {
		t.Errorf("expected 1 free / 0 paid, got %d / %d", sum.FreeCalls, sum.PaidCalls)
	}
	if sum.Successes != 1 || sum.Failures != 0 {
		t.Errorf("expected 1 success / 0 failures, got %d / %d", sum.Successes, sum.Failures)
	}
	if sum.FallbackTriggered {
		t.Error("single free call must not count as a fallback")
	}
}

func TestClassificationByType_NotCost(t *testing.T) {
	tr := NewTracker()
	// A free-tier call that happens to report a nonzero cost stays free.
	tr.Track(APINewsFree, "stage4", true, 0.01, "")

	sum := tr.Summary()
	if sum.FreeCalls != 1 {
		t.Errorf("free-typed call with nonzero cost should still classify as free")
	}
	if math.Abs(sum.TotalCost-0.01) > 1e-9 {
		t.Errorf("total cost %.4f, want 0.01", sum.TotalCost)
	}
}

func TestFallbackTriggered(t *testing.T) {
	tr := NewTracker()

	// Failed free primary + failed paid fallback: two failed calls, but the
	// free/paid mix still marks the stage as having fallen back.
	tr.Track(APIGeminiFree, "stage2", false, 0.0, "429 rate limited")
	tr.Track(APITavily, "stage2", false, 0.0, "tavily http 500")

	stats := tr.StageStats("stage2")
	if stats.Calls != 2 || stats.Failures != 2 {
		t.Fatalf("expected 2 failed calls, got %+v", stats)
	}
	if !stats.FallbackTriggered {
		t.Error("stage with free and paid records should report fallback_triggered")
	}

	// A different stage with only free calls does not.
	tr.Track(APIGeminiFree, "stage1", true, 0.0, "")
	if tr.StageStats("stage1").FallbackTriggered {
		t.Error("free-only stage must not report fallback_triggered")
	}
}

func TestTotalCost_IncludesFailedCalls(t *testing.T) {
	tr := NewTracker()
	tr.Track(APITavily, "stage2", true, 0.02, "")
	tr.Track(APITavily, "stage2", false, 0.02, "timeout after charge")
	tr.Track(APIGeminiFree, "stage2", false, 0.0, "quota exceeded")

	if got := tr.TotalCost(); math.Abs(got-0.04) > 1e-9 {
		t.Errorf("total cost %.4f, want 0.04", got)
	}
}

func TestStageStats_IsolatesStages(t *testing.T) {
	tr := NewTracker()
	tr.Track(APIGeminiFree, "stage2", true, 0.0, "")
	tr.Track(APITavily, "stage5", true, 0.02, "")

	if s := tr.StageStats("stage2"); s.Calls != 1 || s.PaidCalls != 0 {
		t.Errorf("stage2 stats leaked other stages: %+v", s)
	}
	if s := tr.StageStats("stage5"); s.Calls != 1 || s.FreeCalls != 0 {
		t.Errorf("stage5 stats leaked other stages: %+v", s)
	}
	if s := tr.StageStats("nonexistent"); s.Calls != 0 || s.FallbackTriggered {
		t.Errorf("unknown stage should be empty: %+v", s)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Track(APITavily, "stage2", true, 0.02, "")
	tr.Reset()

	if sum := tr.Summary(); sum.Calls != 0 || sum.TotalCost != 0 {
		t.Errorf("reset did not clear the ledger: %+v", sum)
	}
}

func TestCalls_ReturnsCopyInOrder(t *testing.T) {
	tr := NewTracker()
	tr.Track(APIGeminiFree, "stage2", false, 0.0, "quota")
	tr.Track(APITavily, "stage2", true, 0.02, "")

	calls := tr.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Type != APIGeminiFree || calls[1].Type != APITavily {
		t.Error("ledger order not preserved")
	}
	if calls[0].ID == "" || calls[0].ID == calls[1].ID {
		t.Error("calls should carry distinct non-empty IDs")
	}

	// Mutating the copy must not affect the ledger.
	calls[0].Stage = "mutated"
	if tr.Calls()[0].Stage != "stage2" {
		t.Error("Calls() did not return a copy")
	}
}
