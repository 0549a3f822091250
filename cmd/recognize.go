package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/recognition"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize a face and record attendance",
	Long: `Run the check-in pipeline on one image ("-" reads stdin). A recognized
identity gets the frame added to its gallery and, once per day, an attendance
record and loyalty points - exactly as a check-in through the API.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("max-distance", -1, "Override RECOGNITION_MAX_DISTANCE (0 disables the threshold)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

type outcomeJSON struct {
	Status             recognition.Status `json:"status"`
	IdentityID         string             `json:"identity_id,omitempty"`
	Name               string             `json:"name,omitempty"`
	AttendanceCount    int                `json:"attendance_count"`
	LoyaltyPoints      int                `json:"loyalty_points"`
	Distance           float64            `json:"distance"`
	AttendanceRecorded bool               `json:"attendance_recorded"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	image, err := readImageFile(args[0])
	if err != nil {
		return err
	}

	maxDistance := mustGetFloat64(cmd, "max-distance")
	a, err := newApp(ctx, os.Stderr, false, func(opts *recognition.Options) {
		if maxDistance >= 0 {
			opts.MaxDistance = maxDistance
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.service.Recognize(ctx, image)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return printJSON(outcomeJSON{
			Status:             out.Status,
			IdentityID:         out.IdentityID,
			Name:               out.Name,
			AttendanceCount:    out.AttendanceCount,
			LoyaltyPoints:      out.LoyaltyPoints,
			Distance:           out.Distance,
			AttendanceRecorded: out.AttendanceRecorded,
		})
	}

	if !out.Recognized() {
		fmt.Printf("Not recognized: %s\n", out.Status)
		if out.Distance > 0 {
			fmt.Printf("  Nearest distance: %.4f\n", out.Distance)
		}
		return nil
	}

	fmt.Printf("Recognized %s (%s)\n", out.Name, out.IdentityID)
	fmt.Printf("  Distance:   %.4f\n", out.Distance)
	fmt.Printf("  Attendance: %d", out.AttendanceCount)
	if out.AttendanceRecorded {
		fmt.Print(" (recorded today)")
	}
	fmt.Println()
	fmt.Printf("  Points:     %d\n", out.LoyaltyPoints)
	return nil
}
