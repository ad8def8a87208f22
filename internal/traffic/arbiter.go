package traffic

// Candidate pairs a factor with the priority of the source that produced
// it. Priority is a tie-break only, never a primary ranking key.
type Candidate struct {
	Factor   Factor
	Priority int
}

// BestFactor selects the single most relevant factor from the candidate
// set. Relevance is proximity-based: smaller known distance wins, any
// known distance ranks above an unknown one. Ties break by higher source
// priority, then newer timestamp, then object ID, then source ID, so the
// result is deterministic for identical inputs regardless of candidate
// order.
//
// Invalid factors never win. The second return value is false when no
// valid candidate exists.
func BestFactor(candidates []Candidate) (Factor, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if !c.Factor.Valid {
			continue
		}
		if !found || factorLess(c, best) {
			best = c
			found = true
		}
	}
	return best.Factor, found
}

// factorLess reports whether a is more relevant than b.
func factorLess(a, b Candidate) bool {
	switch {
	case a.Factor.DistanceValid && !b.Factor.DistanceValid:
		return true
	case !a.Factor.DistanceValid && b.Factor.DistanceValid:
		return false
	case a.Factor.DistanceValid && b.Factor.DistanceValid &&
		a.Factor.DistanceNm != b.Factor.DistanceNm:
		return a.Factor.DistanceNm < b.Factor.DistanceNm
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.Factor.TimestampUTC.Equal(b.Factor.TimestampUTC) {
		return a.Factor.TimestampUTC.After(b.Factor.TimestampUTC)
	}
	if a.Factor.ObjectID != b.Factor.ObjectID {
		return a.Factor.ObjectID < b.Factor.ObjectID
	}
	return a.Factor.SourceID < b.Factor.SourceID
}

// BestWarning selects the highest-priority current warning: strictly by
// alarm level, ties broken by newer timestamp, then source ID. Inactive
// warnings never win; false means no active warning exists.
func BestWarning(warnings []Warning) (Warning, bool) {
	var best Warning
	found := false
	for _, w := range warnings {
		if !w.Level.Active() {
			continue
		}
		if !found || warningLess(w, best) {
			best = w
			found = true
		}
	}
	return best, found
}

func warningLess(a, b Warning) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if !a.TimestampUTC.Equal(b.TimestampUTC) {
		return a.TimestampUTC.After(b.TimestampUTC)
	}
	return a.SourceID < b.SourceID
}
