package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/recognition"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll a new identity from a face image",
	Long: `Enroll a new identity from one image ("-" reads stdin). The face is
located and embedded by the vision service; the name must be unique
(case and diacritics are ignored).

Example:
  face-checkin enroll alice.jpg --name "Alice Smith" --phone "+420 777 000 111"`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name (required)")
	enrollCmd.Flags().String("phone", "", "Phone number")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	image, err := readImageFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.Enroll(ctx, recognition.EnrollRequest{
		Name:  mustGetString(cmd, "name"),
		Phone: mustGetString(cmd, "phone"),
		Image: image,
	})
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(identityView(identity))
	}
	fmt.Printf("Enrolled %s (%s)\n", identity.Name, identity.ID)
	return nil
}
