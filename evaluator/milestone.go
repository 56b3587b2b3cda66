package evaluator

// Upvote milestones for posts and comments.
var UpvoteMilestones = []int{1, 3, 5, 10, 20, 50, 100, 200, 500, 1000}

// ReputationMilestones for users.
var ReputationMilestones = []int{10, 50, 100, 250, 500, 1000, 2500, 5000}

// crossedMilestone returns the highest milestone T with before < T <= after.
// milestones must be ascending.
func crossedMilestone(before, after int, milestones []int) (int, bool) {
	if after <= before {
		return 0, false
	}
	for i := len(milestones) - 1; i >= 0; i-- {
		t := milestones[i]
		if t <= after && t > before {
			return t, true
		}
		if t <= before {
			break
		}
	}
	return 0, false
}
