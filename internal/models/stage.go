// Package models defines the stage enum for the listing intake flow.
package models

// Stage is the position of a draft in the linear intake flow.
type Stage string

const (
	StageAwaitingPhotos      Stage = "awaiting_photos"
	StageResearchingIdentity Stage = "researching_identity"
	StageConfirmIdentity     Stage = "confirm_identity"
	StageConfirmVariants     Stage = "confirm_variants"
	StageConfirmCondition    Stage = "confirm_condition"
	StagePricing             Stage = "pricing"
	StageFinalConfirm        Stage = "final_confirm"
	StageComplete            Stage = "complete"
)

// stageOrder is the canonical linear order. Stages never regress within an
// active draft; the only way out of the sequence is trigger-induced
// abandonment of the whole draft.
var stageOrder = []Stage{
	StageAwaitingPhotos,
	StageResearchingIdentity,
	StageConfirmIdentity,
	StageConfirmVariants,
	StageConfirmCondition,
	StagePricing,
	StageFinalConfirm,
	StageComplete,
}

// IsValidStage checks whether s is one of the known stages.
func IsValidStage(s Stage) bool {
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// StageIndex returns the position of s in the linear order, or -1.
func StageIndex(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StageAtOrAfter reports whether s is at or past other in the linear order.
func StageAtOrAfter(s, other Stage) bool {
	si, oi := StageIndex(s), StageIndex(other)
	return si >= 0 && oi >= 0 && si >= oi
}
