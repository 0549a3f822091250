package recognition

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/config"
	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/facematch"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

// Options tune the pipeline.
type Options struct {
	MaxDistance       float64 // 0 disables the rejection threshold
	GalleryCapacity   int
	LoyaltyReward     int  // 0 means DefaultLoyaltyReward unless NoReward is set
	NoReward          bool // attendance grants no points
	Selection         facematch.SelectionPolicy
	Workers           int // concurrent locate/extract calls
	CropSize          int
	LookalikeDistance float64
	Location          *time.Location // decides the attendance day
	Now               func() time.Time
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	selection, err := cfg.Recognition.Selection()
	if err != nil {
		return Options{}, err
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		MaxDistance:       cfg.Recognition.MaxDistance,
		GalleryCapacity:   cfg.Recognition.GalleryCapacity,
		LoyaltyReward:     cfg.Recognition.LoyaltyReward,
		NoReward:          cfg.Recognition.LoyaltyReward == 0,
		Selection:         selection,
		Workers:           cfg.Recognition.Workers,
		CropSize:          cfg.Vision.CropSize,
		LookalikeDistance: cfg.Recognition.LookalikeDistance,
		Location:          loc,
	}, nil
}

func (o *Options) applyDefaults() {
	if o.GalleryCapacity < 1 {
		o.GalleryCapacity = database.DefaultGalleryCapacity
	}
	switch {
	case o.NoReward:
		o.LoyaltyReward = 0
	case o.LoyaltyReward <= 0:
		o.LoyaltyReward = database.DefaultLoyaltyReward
	}
	if o.Selection == "" {
		o.Selection = facematch.SelectLargest
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service orchestrates recognition, enrollment and identity administration.
type Service struct {
	store     database.IdentityWriter
	locator   vision.Locator
	extractor vision.Extractor
	matcher   *facematch.Matcher
	opts      Options
	log       zerolog.Logger

	sem chan struct{}

	// Lookalike index, rebuilt when generation moved past indexGen.
	generation atomic.Uint64
	indexMu    sync.Mutex
	index      *database.GalleryIndex
	indexGen   uint64
}

// NewService wires the pipeline. The store, locator and extractor are owned by the caller.
func NewService(
	store database.IdentityWriter, locator vision.Locator, extractor vision.Extractor,
	opts Options, log zerolog.Logger,
) *Service {
	opts.applyDefaults()

	s := &Service{
		store:     store,
		locator:   locator,
		extractor: extractor,
		opts:      opts,
		log:       log,
		sem:       make(chan struct{}, opts.Workers),
	}
	s.matcher = facematch.NewMatcher(opts.MaxDistance)
	s.matcher.OnSkip = func(identityID string, index int, reason error) {
		s.log.Warn().
			Str("identity_id", identityID).
			Int("embedding_index", index).
			Err(reason).
			Msg("skipping invalid stored embedding")
	}

	if !s.matcher.Thresholded() {
		s.log.Warn().Msg("recognition distance threshold disabled: the nearest identity is always accepted")
	}
	return s
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.sem
}

// today returns the attendance day of the current instant.
func (s *Service) today() time.Time {
	return database.AttendanceDay(s.opts.Now().In(s.opts.Location))
}

// changed invalidates the lookalike index.
func (s *Service) changed() {
	s.generation.Add(1)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// locateFace decodes the frame, finds faces and crops the selected one.
// Failures map to ErrNoFaceDetected unless the context ended.
func (s *Service) locateFace(ctx context.Context, frame []byte) (facematch.Rect, []byte, error) {
	img, err := vision.DecodeImage(frame)
	if err != nil {
		s.log.Info().Err(err).Msg("frame could not be decoded")
		return facematch.Rect{}, nil, ErrNoFaceDetected
	}

	rects, err := s.locator.Locate(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return facematch.Rect{}, nil, ctx.Err()
		}
		s.log.Error().Err(err).Msg("face locator failed")
		return facematch.Rect{}, nil, ErrNoFaceDetected
	}

	rect, ok := facematch.SelectFace(rects, img.Bounds(), s.opts.Selection)
	if !ok {
		return facematch.Rect{}, nil, ErrNoFaceDetected
	}

	crop, err := vision.CropFace(img, rect, s.opts.CropSize)
	if err != nil {
		s.log.Error().Err(err).Msg("face crop failed")
		return facematch.Rect{}, nil, ErrNoFaceDetected
	}
	return rect, crop, nil
}

// embedFrame runs locate, crop, extract and validation under the worker semaphore.
func (s *Service) embedFrame(ctx context.Context, frame []byte) (facematch.Rect, facematch.Vector, error) {
	if err := s.acquire(ctx); err != nil {
		return facematch.Rect{}, nil, err
	}
	defer s.release()

	rect, crop, err := s.locateFace(ctx, frame)
	if err != nil {
		return facematch.Rect{}, nil, err
	}

	vec, err := s.extractor.Extract(ctx, crop)
	if err != nil {
		if ctx.Err() != nil {
			return rect, nil, ctx.Err()
		}
		s.log.Error().Err(err).Msg("embedding extraction failed")
		return rect, nil, ErrExtractionFailed
	}

	if err := vec.Validate(); err != nil {
		s.log.Error().Err(err).Int("dim", len(vec)).Msg("extractor returned an invalid embedding")
		return rect, nil, ErrInvalidEmbedding
	}
	return rect, vec, nil
}

// Detect locates and crops the face a recognition would use, without extracting.
func (s *Service) Detect(ctx context.Context, frame []byte) (DetectResult, error) {
	if err := s.acquire(ctx); err != nil {
		return DetectResult{}, err
	}
	defer s.release()

	rect, crop, err := s.locateFace(ctx, frame)
	if errors.Is(err, ErrNoFaceDetected) {
		return DetectResult{}, nil
	}
	if err != nil {
		return DetectResult{}, err
	}
	return DetectResult{Detected: true, FaceRect: rect, Crop: crop}, nil
}
