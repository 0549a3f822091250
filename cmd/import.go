package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/recognition"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll every face image of a directory",
	Long: `Enroll one identity per image file of a directory. The name is taken from
the file name up to the first underscore, dashes become spaces:

  Alice_1.jpg         -> Alice
  Jan-Novak_2024.png  -> Jan Novak

The first file of each name (in sorted order) is used; names that are already
enrolled are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "List the names that would be enrolled without calling the vision service")
	importCmd.Flags().Int("concurrency", 0, "Concurrent enrollments (default RECOGNITION_WORKERS)")
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := args[0]

	files, err := recognition.ImportFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No image files found.")
		return nil
	}

	if mustGetBool(cmd, "dry-run") {
		for _, f := range files {
			fmt.Printf("%s -> %s\n", filepath.Base(f), recognition.NameFromFilename(f))
		}
		fmt.Printf("\nTotal: %d files\n", len(files))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	concurrency := mustGetInt(cmd, "concurrency")
	a, err := newApp(ctx, os.Stderr, false, func(opts *recognition.Options) {
		if concurrency > 0 {
			opts.Workers = concurrency
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Files to import: %d\n\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	summary := a.service.EnrollFiles(ctx, files, func(recognition.ImportResult) {
		mu.Lock()
		defer mu.Unlock()
		bar.Add(1)
	})
	bar.Finish()
	fmt.Println()

	for _, r := range summary.Results {
		switch {
		case r.Skipped:
			fmt.Printf("  skipped %s (%s): %v\n", filepath.Base(r.File), r.Name, r.Err)
		case r.Err != nil:
			fmt.Printf("  failed  %s (%s): %v\n", filepath.Base(r.File), r.Name, r.Err)
		}
	}

	fmt.Printf("\nEnrolled: %d, skipped: %d, failed: %d\n", summary.Enrolled, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to import", summary.Failed)
	}
	return nil
}
