package database

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

// ErrIndexEmpty is returned when searching an index without embeddings.
var ErrIndexEmpty = errors.New("index not initialized")

// Neighbor is an identity found near a query embedding.
type Neighbor struct {
	IdentityID string
	Name       string
	Distance   float64
}

// GalleryIndex is an approximate nearest-neighbor index over all gallery embeddings.
// It is used for administrative lookalike reports; recognition itself relies on
// the exact scan in facematch.
type GalleryIndex struct {
	graph   *hnsw.Graph[string]
	owners  map[string]*indexedIdentity // node key -> identity
	dims    int
	skipped int
	mu      sync.RWMutex
}

type indexedIdentity struct {
	id   string
	name string
}

// NewGalleryIndex creates an empty index.
func NewGalleryIndex() *GalleryIndex {
	return &GalleryIndex{
		owners: make(map[string]*indexedIdentity),
	}
}

func nodeKey(identityID string, i int) string {
	return identityID + "#" + strconv.Itoa(i)
}

// Build replaces the index contents with the galleries of the given identities.
// Non-finite embeddings and embeddings whose dimension differs from the first
// indexed one are left out.
func (g *GalleryIndex) Build(identities []Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.graph = nil
	g.owners = make(map[string]*indexedIdentity)
	g.dims = 0
	g.skipped = 0

	graph := hnsw.NewGraph[string]()
	graph.M = HNSWMaxNeighbors
	graph.Ml = 1.0 / math.Log(float64(HNSWMaxNeighbors))
	graph.EfSearch = HNSWEfSearch
	graph.Distance = hnsw.EuclideanDistance

	added := 0
	for i := range identities {
		identity := &identities[i]
		owner := &indexedIdentity{id: identity.ID, name: identity.Name}
		for j, emb := range identity.Embeddings {
			if emb.Validate() != nil {
				g.skipped++
				continue
			}
			if g.dims == 0 {
				g.dims = len(emb)
			}
			if len(emb) != g.dims {
				g.skipped++
				continue
			}
			key := nodeKey(identity.ID, j)
			graph.Add(hnsw.MakeNode(key, []float32(emb.Clone())))
			g.owners[key] = owner
			added++
		}
	}

	if added > 0 {
		g.graph = graph
	}
	return nil
}

// Len returns the number of indexed embeddings.
func (g *GalleryIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owners)
}

// Skipped returns how many embeddings the last Build left out.
func (g *GalleryIndex) Skipped() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.skipped
}

// Search returns up to k identities nearest to the query, each identity reported
// once with its closest embedding distance. Identities listed in exclude are skipped.
func (g *GalleryIndex) Search(query facematch.Vector, k int, exclude ...string) ([]Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil {
		return nil, ErrIndexEmpty
	}
	if k <= 0 {
		return nil, nil
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	if len(query) != g.dims {
		return nil, fmt.Errorf("query dimension %d, index has %d", len(query), g.dims)
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	nodes := g.graph.Search([]float32(query), k*HNSWSearchMultiplier+len(exclude)*DefaultGalleryCapacity)

	best := make(map[string]*Neighbor)
	for _, n := range nodes {
		owner, ok := g.owners[n.Key]
		if !ok || skip[owner.id] {
			continue
		}
		d := facematch.EuclideanDistance(query, facematch.Vector(n.Value))
		if cur, ok := best[owner.id]; !ok || d < cur.Distance {
			best[owner.id] = &Neighbor{IdentityID: owner.id, Name: owner.name, Distance: d}
		}
	}

	result := make([]Neighbor, 0, len(best))
	for _, n := range best {
		result = append(result, *n)
	}
	return nearest(result, k), nil
}

// Lookalikes returns up to k other identities closest to any embedding of the
// given identity.
func (g *GalleryIndex) Lookalikes(identity *Identity, k int) ([]Neighbor, error) {
	merged := make(map[string]Neighbor)
	for _, emb := range identity.Embeddings {
		if emb.Validate() != nil {
			continue
		}
		found, err := g.Search(emb, k, identity.ID)
		if err != nil {
			if errors.Is(err, ErrIndexEmpty) {
				return nil, nil
			}
			continue
		}
		for _, n := range found {
			if cur, ok := merged[n.IdentityID]; !ok || n.Distance < cur.Distance {
				merged[n.IdentityID] = n
			}
		}
	}

	result := make([]Neighbor, 0, len(merged))
	for _, n := range merged {
		result = append(result, n)
	}
	return nearest(result, k), nil
}

// nearest sorts by distance, then ID, and keeps the first k.
func nearest(neighbors []Neighbor, k int) []Neighbor {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].IdentityID < neighbors[j].IdentityID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// Identities returns the sorted IDs of identities with at least one indexed embedding.
func (g *GalleryIndex) Identities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, owner := range g.owners {
		if !seen[owner.id] {
			seen[owner.id] = true
			ids = append(ids, owner.id)
		}
	}
	sort.Strings(ids)
	return ids
}
