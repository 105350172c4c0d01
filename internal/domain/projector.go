package domain

// Project folds a single activity event into the user's derived status. It is
// a pure function of (current status, event); callers are responsible for
// executing it atomically with the ledger append.
//
// Transition rules, keyed by event kind:
//
//	planning:  add to Planning
//	worked_on: remove from Planning, add to InProgress, SecsWorked += duration
//	completed: remove from InProgress, add to Completed, AssignmentsCompleted++
//
// Set membership is idempotent; the stats side is not. Every worked-on event
// accumulates its duration even when the assignment is already in progress,
// and every completed event increments the counter even when the assignment is
// already in the completed set. The latter means duplicate completed events
// double-count the counter while the set grows by at most one; the original
// trigger logic behaves this way and it is preserved here rather than silently
// fixed.
//
// Progression is not enforced: an event may arrive for an assignment in any
// state, and each rule only touches the sets it names.
func Project(status UserStatus, act Activity) UserStatus {
	next := status.Clone()

	switch act.Kind {
	case KindPlanning:
		next.Planning.Add(act.AssignmentID)
	case KindWorkedOn:
		next.Planning.Remove(act.AssignmentID)
		next.InProgress.Add(act.AssignmentID)
		next.Stats.SecsWorked += act.DurationSecs
	case KindCompleted:
		next.InProgress.Remove(act.AssignmentID)
		next.Completed.Add(act.AssignmentID)
		next.Stats.AssignmentsCompleted++
	}

	next.UpdatedAt = act.RecordedAt
	return next
}
