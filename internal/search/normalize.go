package search

// Normalize rescales a candidate set's scores to [0,1] by min-max so sets
// from differently-scaled rankers become comparable. When every score is
// equal the whole set maps to 1.0; ranking by insertion order would invent
// an ordering the source never expressed. The pre-normalization score is
// kept in RawScore.
func Normalize(candidates []*SearchCandidate) []*SearchCandidate {
	if len(candidates) == 0 {
		return candidates
	}

	minScore, maxScore := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	if maxScore == minScore {
		for _, c := range candidates {
			c.RawScore = c.Score
			c.Score = 1.0
		}
		return candidates
	}

	span := maxScore - minScore
	for _, c := range candidates {
		c.RawScore = c.Score
		c.Score = (c.Score - minScore) / span
	}
	return candidates
}
