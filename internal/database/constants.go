package database

// Gallery and loyalty defaults.
const (
	// DefaultGalleryCapacity is the number of embeddings kept per identity.
	DefaultGalleryCapacity = 10

	// DefaultLoyaltyReward is the number of points granted for the first attendance of a day.
	DefaultLoyaltyReward = 20

	// DayLayout is the storage format of attendance days.
	DayLayout = "2006-01-02"
)

// HNSW parameters for the lookalike index.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 64

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that enough remain after dropping the identity's own embeddings.
	HNSWSearchMultiplier = 3
)
