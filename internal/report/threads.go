package report

import "time"

// ThreadStats describe the reply forest reconstructed from
// reply-parent links.
type ThreadStats struct {
	AverageLifespanSeconds float64 `json:"average_lifespan_seconds"`
	AverageDepth           float64 `json:"average_depth"`
	ReplyDensity           float64 `json:"reply_density"`
	RepliesWithin10mRatio  float64 `json:"replies_within_10m_ratio"`
}

type messageMeta struct {
	when      time.Time
	parentID  int64
	channelID int64
	authorID  int64
}

// buildThreadStats walks each root's subtree iteratively; reply chains
// may be arbitrarily deep, so no recursion. A root is any archived
// message whose parent is absent or was never archived. Roots without
// replies contribute nothing to the lifespan/depth averages.
func buildThreadStats(meta map[int64]messageMeta, children map[int64][]int64) ThreadStats {
	if len(meta) == 0 {
		return ThreadStats{}
	}

	totalReplies := 0
	quickReplies := 0
	var lifespans []float64
	var depths []float64

	type frame struct {
		id    int64
		depth int
	}

	for id, m := range meta {
		if m.parentID != 0 {
			if _, ok := meta[m.parentID]; ok {
				continue // not a root
			}
		}
		kids := children[id]
		if len(kids) == 0 {
			continue
		}

		rootTime := m.when
		maxDepth := 0
		var lastReply time.Time
		replySeen := false

		visited := map[int64]struct{}{id: {}}
		stack := []frame{{id: id, depth: 0}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, child := range children[top.id] {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				cm, ok := meta[child]
				if !ok {
					continue
				}
				depth := top.depth + 1
				if depth > maxDepth {
					maxDepth = depth
				}
				totalReplies++
				if cm.when.Sub(rootTime) <= 10*time.Minute {
					quickReplies++
				}
				if !replySeen || cm.when.After(lastReply) {
					lastReply = cm.when
					replySeen = true
				}
				stack = append(stack, frame{id: child, depth: depth})
			}
		}

		if replySeen {
			lifespans = append(lifespans, lastReply.Sub(rootTime).Seconds())
		}
		depths = append(depths, float64(maxDepth))
	}

	stats := ThreadStats{
		AverageLifespanSeconds: mean(lifespans),
		AverageDepth:           mean(depths),
	}
	stats.ReplyDensity = float64(totalReplies) / float64(len(meta))
	if totalReplies > 0 {
		stats.RepliesWithin10mRatio = float64(quickReplies) / float64(totalReplies)
	}
	return stats
}
