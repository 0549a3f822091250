// Package facematch provides the face matching primitives shared by the recognition
// service, the stores and the CLI: vectors, distances, the gallery matcher and
// face rectangle selection.
package facematch

// GalleryEntry is one enrolled identity as seen by the matcher.
type GalleryEntry struct {
	IdentityID string
	Name       string
	Embeddings []Vector
}

// Match is the result of a nearest-neighbour scan over a gallery snapshot.
type Match struct {
	IdentityID string
	Name       string
	Distance   float64
	Found      bool // nearest identity accepted
	Rejected   bool // nearest identity exists but is farther than MaxDistance
	Compared   int  // stored embeddings compared against the query
	Skipped    int  // stored embeddings ignored as invalid
}
