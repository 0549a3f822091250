package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateName is returned when another identity already uses the name.
	ErrDuplicateName = errors.New("identity name already exists")
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// ListIdentities returns all identities with their galleries in enrollment order
	ListIdentities(ctx context.Context) ([]Identity, error)
	// GetIdentity retrieves an identity by ID, ErrNotFound if missing
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	// GetIdentityByName retrieves an identity by its normalized display name
	GetIdentityByName(ctx context.Context, name string) (*Identity, error)
	// ListAttendance returns the attendance records of an identity, oldest day first
	ListAttendance(ctx context.Context, id string) ([]AttendanceRecord, error)
	// Count returns the number of enrolled identities
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to identities and the attendance ledger
type IdentityWriter interface {
	IdentityReader

	// CreateIdentity stores a new identity. ID must be set and Embeddings must hold
	// exactly one vector. Seq, CreatedAt and UpdatedAt are filled in by the store.
	// Returns ErrDuplicateName if the normalized name is taken.
	CreateIdentity(ctx context.Context, identity *Identity) error

	// RecordRecognition applies an accepted recognition as one atomic unit:
	// it appends the embedding and keeps the newest capacity entries, then inserts
	// the attendance record for day if it is missing and, only in that case,
	// adds reward loyalty points and one attendance. Concurrent calls for the same
	// identity are serialized. Returns ErrNotFound if the identity is gone.
	RecordRecognition(
		ctx context.Context, id string, embedding []float32, day time.Time, capacity, reward int,
	) (*RecognitionUpdate, error)

	// UpdateIdentity changes the display name and phone.
	UpdateIdentity(ctx context.Context, id, name, phone string) error

	// DeleteIdentity removes an identity with its gallery and attendance records.
	DeleteIdentity(ctx context.Context, id string) error
}

// Store is an identity writer backed by resources that must be released.
type Store interface {
	IdentityWriter
	Close() error
}
