package onboarding

// SelectNext returns the next question to ask, or false when none is
// eligible. Answered questions, questions deeper than the current depth and
// questions with unanswered prerequisites are excluded; of the rest the
// lowest tier wins, ties broken by catalog order.
func SelectNext(c *Catalog, progress Progress) (Question, bool) {
	var (
		best  Question
		found bool
	)
	for _, q := range c.questions {
		if progress.HasAnswered(q.ID) {
			continue
		}
		if q.Tier.Rank() > progress.Depth.Rank() {
			continue
		}
		if !prerequisitesMet(q, progress) {
			continue
		}
		if !found || q.Tier.Rank() < best.Tier.Rank() {
			best, found = q, true
		}
	}
	return best, found
}

func prerequisitesMet(q Question, progress Progress) bool {
	for _, req := range q.Requires {
		if !progress.HasAnswered(req) {
			return false
		}
	}
	return true
}

// Remaining counts the questions still reachable at the current depth.
func Remaining(c *Catalog, progress Progress) int {
	n := 0
	for _, q := range c.questions {
		if q.Tier.Rank() <= progress.Depth.Rank() && !progress.HasAnswered(q.ID) {
			n++
		}
	}
	return n
}
