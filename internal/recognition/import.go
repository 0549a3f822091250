package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-checkin/internal/facematch"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// ImportResult is the outcome of one file of a directory import.
type ImportResult struct {
	File       string
	Name       string
	IdentityID string
	Skipped    bool // duplicate name, either within the directory or already enrolled
	Err        error
}

// ImportSummary aggregates a directory import.
type ImportSummary struct {
	Enrolled int
	Skipped  int
	Failed   int
	Results  []ImportResult // sorted by file name
}

// NameFromFilename derives a display name from "<Name>_<anything>.<ext>".
// Dashes in the name part become spaces and case is kept; a file without an
// underscore is named by its whole base name.
func NameFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}
	return facematch.CleanDisplayName(strings.ReplaceAll(base, "-", " "))
}

// ImportFiles lists the image files of a directory, sorted by name.
func ImportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading import directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// EnrollFiles enrolls one identity per distinct name, using the first file of each
// name in sorted order. Later files with an already seen name are skipped. onDone,
// if set, is called once per file from the worker goroutines.
func (s *Service) EnrollFiles(ctx context.Context, files []string, onDone func(ImportResult)) *ImportSummary {
	results := make([]ImportResult, len(files))
	seen := make(map[string]bool)

	type job struct {
		index int
		name  string
	}
	var jobs []job
	for i, file := range files {
		name := NameFromFilename(file)
		results[i] = ImportResult{File: file, Name: name}
		key := facematch.NormalizePersonName(name)
		switch {
		case name == "":
			results[i].Err = ErrInvalidName
		case seen[key]:
			results[i].Skipped = true
			results[i].Err = ErrDuplicateName
		default:
			seen[key] = true
			jobs = append(jobs, job{index: i, name: name})
			continue
		}
		if onDone != nil {
			onDone(results[i])
		}
	}

	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := &results[j.index]
			image, err := os.ReadFile(res.File)
			if err != nil {
				res.Err = fmt.Errorf("reading image: %w", err)
			} else {
				identity, err := s.Enroll(ctx, EnrollRequest{Name: j.name, Image: image})
				switch {
				case errors.Is(err, ErrDuplicateName):
					res.Skipped = true
					res.Err = err
				case err != nil:
					res.Err = err
				default:
					res.IdentityID = identity.ID
				}
			}
			if onDone != nil {
				onDone(*res)
			}
		}(j)
	}
	wg.Wait()

	summary := &ImportSummary{Results: results}
	for _, r := range results {
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Err != nil:
			summary.Failed++
		default:
			summary.Enrolled++
		}
	}
	return summary
}

// EnrollDirectory enrolls every image file of dir. See EnrollFiles.
func (s *Service) EnrollDirectory(ctx context.Context, dir string, onDone func(ImportResult)) (*ImportSummary, error) {
	files, err := ImportFiles(dir)
	if err != nil {
		return nil, err
	}
	return s.EnrollFiles(ctx, files, onDone), nil
}
