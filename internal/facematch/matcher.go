package facematch

import (
	"fmt"
)

// Matcher finds the enrolled identity closest to a query embedding.
type Matcher struct {
	// MaxDistance rejects a winner farther than this. Zero disables the threshold,
	// in which case the nearest identity is always accepted.
	MaxDistance float64

	// OnSkip, when set, is called for every stored embedding left out of the scan.
	OnSkip func(identityID string, index int, reason error)
}

// NewMatcher creates a matcher with the given rejection threshold.
func NewMatcher(maxDistance float64) *Matcher {
	return &Matcher{MaxDistance: maxDistance}
}

// Thresholded reports whether the matcher can reject a nearest identity.
func (m *Matcher) Thresholded() bool {
	return m.MaxDistance > 0
}

// Match scans every embedding of every identity and returns the global nearest one.
// Identities are visited in slice order and ties keep the first identity seen.
func (m *Matcher) Match(query Vector, gallery []GalleryEntry) Match {
	var best Match
	if query.Validate() != nil {
		return best
	}

	bestDistance := 0.0
	seen := false
	for _, entry := range gallery {
		for i, emb := range entry.Embeddings {
			if err := emb.Validate(); err != nil {
				best.Skipped++
				m.skip(entry.IdentityID, i, err)
				continue
			}
			if len(emb) != len(query) {
				best.Skipped++
				m.skip(entry.IdentityID, i, fmt.Errorf("dimension %d, query has %d", len(emb), len(query)))
				continue
			}

			best.Compared++
			d := EuclideanDistance(query, emb)
			if !seen || d < bestDistance {
				seen = true
				bestDistance = d
				best.IdentityID = entry.IdentityID
				best.Name = entry.Name
			}
		}
	}

	if !seen {
		return best
	}

	best.Distance = bestDistance
	if m.Thresholded() && bestDistance > m.MaxDistance {
		best.Rejected = true
		return best
	}
	best.Found = true
	return best
}

func (m *Matcher) skip(identityID string, index int, reason error) {
	if m.OnSkip != nil {
		m.OnSkip(identityID, index, reason)
	}
}
