package pipeline

import (
	"sort"
	"strings"
)

// Scored is a retrieved image with its relevance probability.
type Scored struct {
	ImageID     string
	Probability float64
}

// SelectTop returns the keep highest-probability candidates. Ties keep their
// retrieval order. keep <= 0 returns every candidate. The input is not modified.
func SelectTop(scored []Scored, keep int) []Scored {
	sorted := make([]Scored, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Probability > sorted[j].Probability
	})
	if keep > 0 && len(sorted) > keep {
		sorted = sorted[:keep]
	}
	return sorted
}

// ApplyThreshold keeps the identifiers whose probability is at least filter,
// in selection order.
func ApplyThreshold(selected []Scored, filter float64) []string {
	out := make([]string, 0, len(selected))
	for _, s := range selected {
		if s.Probability >= filter {
			out = append(out, s.ImageID)
		}
	}
	return out
}

// Partition splits the distinct selected identifiers into those in the
// ground-truth set and the rest, both in selection order.
func Partition(selected, groundTruth []string) (intersect, remaining []string) {
	gt := toSet(groundTruth)
	seen := make(map[string]bool, len(selected))
	intersect, remaining = []string{}, []string{}
	for _, id := range selected {
		if seen[id] {
			continue
		}
		seen[id] = true
		if gt[id] {
			intersect = append(intersect, id)
		} else {
			remaining = append(remaining, id)
		}
	}
	return intersect, remaining
}

// JoinImagePaths renders image paths as one comma-separated string.
func JoinImagePaths(paths []string) string {
	return strings.Join(paths, ",")
}

// countCorrect returns |set(evidence) ∩ set(groundTruth)|.
func countCorrect(evidence, groundTruth []string) int {
	gt := toSet(groundTruth)
	var n int
	for id := range toSet(evidence) {
		if gt[id] {
			n++
		}
	}
	return n
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func ids(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.ImageID
	}
	return out
}

func probabilities(scored []Scored) []float64 {
	out := make([]float64, len(scored))
	for i, s := range scored {
		out[i] = s.Probability
	}
	return out
}
