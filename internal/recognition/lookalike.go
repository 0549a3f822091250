package recognition

import (
	"context"

	"github.com/kozaktomas/face-checkin/internal/constants"
	"github.com/kozaktomas/face-checkin/internal/database"
)

// lookalikeIndex returns the index, rebuilding it from a store snapshot if any
// write happened since the last build.
func (s *Service) lookalikeIndex(ctx context.Context) (*database.GalleryIndex, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	gen := s.generation.Load()
	if s.index != nil && s.indexGen == gen {
		return s.index, nil
	}

	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, storeError("list identities", err)
	}

	idx := database.NewGalleryIndex()
	if err := idx.Build(identities); err != nil {
		return nil, err
	}
	if skipped := idx.Skipped(); skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Msg("embeddings left out of the lookalike index")
	}
	s.log.Debug().Int("embeddings", idx.Len()).Msg("lookalike index rebuilt")

	s.index = idx
	s.indexGen = gen
	return idx, nil
}

// Lookalikes returns up to k other identities whose galleries come closest to the
// given identity's embeddings. It helps spot people enrolled twice under different names.
func (s *Service) Lookalikes(ctx context.Context, id string, k int) ([]Lookalike, error) {
	if k <= 0 {
		k = constants.DefaultLookalikes
	}

	identity, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, passStoreErr("get identity", err)
	}

	idx, err := s.lookalikeIndex(ctx)
	if err != nil {
		return nil, err
	}

	neighbors, err := idx.Lookalikes(identity, k)
	if err != nil {
		return nil, err
	}

	result := make([]Lookalike, len(neighbors))
	for i, n := range neighbors {
		result[i] = Lookalike{
			IdentityID: n.IdentityID,
			Name:       n.Name,
			Distance:   n.Distance,
			Suspicious: s.opts.LookalikeDistance > 0 && n.Distance < s.opts.LookalikeDistance,
		}
	}
	return result, nil
}
