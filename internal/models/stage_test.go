package models

import "testing"

func TestIsValidStage(t *testing.T) {
	for _, s := range stageOrder {
		if !IsValidStage(s) {
			t.Errorf("IsValidStage(%q) = false", s)
		}
	}
	for _, s := range []Stage{"", "listing", "Complete", "awaiting photos"} {
		if IsValidStage(s) {
			t.Errorf("IsValidStage(%q) = true", s)
		}
	}
}

func TestStageIndexOrder(t *testing.T) {
	if StageIndex(StageAwaitingPhotos) != 0 {
		t.Errorf("awaiting_photos index = %d", StageIndex(StageAwaitingPhotos))
	}
	if StageIndex(StageComplete) != len(stageOrder)-1 {
		t.Errorf("complete index = %d", StageIndex(StageComplete))
	}
	if StageIndex("bogus") != -1 {
		t.Errorf("bogus index = %d", StageIndex("bogus"))
	}

	// Every stage is strictly later than its predecessor.
	for i := 1; i < len(stageOrder); i++ {
		if StageIndex(stageOrder[i]) <= StageIndex(stageOrder[i-1]) {
			t.Errorf("stage %q not after %q", stageOrder[i], stageOrder[i-1])
		}
	}
}

func TestStageAtOrAfter(t *testing.T) {
	if !StageAtOrAfter(StagePricing, StageConfirmIdentity) {
		t.Error("pricing should be at or after confirm_identity")
	}
	if !StageAtOrAfter(StagePricing, StagePricing) {
		t.Error("a stage is at or after itself")
	}
	if StageAtOrAfter(StageAwaitingPhotos, StageFinalConfirm) {
		t.Error("awaiting_photos is not after final_confirm")
	}
	if StageAtOrAfter("bogus", StageAwaitingPhotos) {
		t.Error("unknown stage should never compare true")
	}
	if StageAtOrAfter(StageComplete, "bogus") {
		t.Error("comparison against unknown stage should be false")
	}
}
