package envelope

// Lane is a work package's internal workflow state (7-lane vocabulary).
type Lane string

const (
	LanePlanned    Lane = "planned"
	LaneClaimed    Lane = "claimed"
	LaneInProgress Lane = "in_progress"
	LaneForReview  Lane = "for_review"
	LaneDone       Lane = "done"
	LaneBlocked    Lane = "blocked"
	LaneCanceled   Lane = "canceled"
)

// SyncLane is the collapsed 4-lane vocabulary the sync wire format uses.
type SyncLane string

const (
	SyncPlanned   SyncLane = "planned"
	SyncDoing     SyncLane = "doing"
	SyncForReview SyncLane = "for_review"
	SyncDone      SyncLane = "done"
)

// laneCollapse is the authoritative 7-to-4 mapping. The exact table
// matters: claimed and canceled collapse to planned, blocked collapses
// to doing. Do not edit without updating the wire contract.
var laneCollapse = map[Lane]SyncLane{
	LanePlanned:    SyncPlanned,
	LaneClaimed:    SyncPlanned,
	LaneInProgress: SyncDoing,
	LaneForReview:  SyncForReview,
	LaneDone:       SyncDone,
	LaneBlocked:    SyncDoing,
	LaneCanceled:   SyncPlanned,
}

// CollapseLane maps an internal lane to its sync vocabulary.
func CollapseLane(l Lane) (SyncLane, error) {
	s, ok := laneCollapse[l]
	if !ok {
		return "", newValidationError("", "unknown lane %q", l)
	}
	return s, nil
}

// CollapseTransition maps a 7-lane transition to its 4-lane form.
//
// If both ends collapse to the same sync lane the transition is a no-op
// on the wire and suppressed=true is returned: no WPStatusChanged event
// may be emitted for it, not even one with identical values.
func CollapseTransition(prev, next Lane) (from, to SyncLane, suppressed bool, err error) {
	from, err = CollapseLane(prev)
	if err != nil {
		return "", "", false, err
	}
	to, err = CollapseLane(next)
	if err != nil {
		return "", "", false, err
	}
	return from, to, from == to, nil
}
