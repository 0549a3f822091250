package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/constants"
	"github.com/kozaktomas/face-checkin/internal/database"
)

var identityCmd = &cobra.Command{
	Use:     "identity",
	Aliases: []string{"identities"},
	Short:   "List and manage enrolled identities",
	Long: `List enrolled identities. Subcommands accept an identity ID or its name.

Example:
  face-checkin identity list
  face-checkin identity show "Alice Smith"
  face-checkin identity lookalikes 3f0c5b1e-... --k 3`,
	RunE: runIdentityList,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities in enrollment order",
	RunE:  runIdentityList,
}

var identityShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show one identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityShow,
}

var identityRenameCmd = &cobra.Command{
	Use:   "rename <id|name>",
	Short: "Change the name and phone of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityRename,
}

var identityDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete an identity with its gallery and attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityDelete,
}

var identityAttendanceCmd = &cobra.Command{
	Use:   "attendance <id|name>",
	Short: "List the days an identity checked in",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityAttendance,
}

var identityLookalikesCmd = &cobra.Command{
	Use:   "lookalikes <id|name>",
	Short: "Find identities whose faces come close to this one",
	Long: `Find the identities nearest to any embedding of the given identity.
Pairs closer than RECOGNITION_LOOKALIKE_DISTANCE are flagged; they usually
mean the same person was enrolled twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityLookalikes,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityListCmd, identityShowCmd, identityRenameCmd,
		identityDeleteCmd, identityAttendanceCmd, identityLookalikesCmd)

	for _, c := range []*cobra.Command{identityCmd, identityListCmd, identityShowCmd, identityAttendanceCmd, identityLookalikesCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}

	identityRenameCmd.Flags().String("name", "", "New display name (required)")
	identityRenameCmd.Flags().String("phone", "", "New phone number (empty keeps the current one)")
	_ = identityRenameCmd.MarkFlagRequired("name")

	identityDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")

	identityLookalikesCmd.Flags().Int("k", constants.DefaultLookalikes, "Number of lookalikes to show")
}

// identityJSON is the CLI view of an identity, without embeddings.
type identityJSON struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	LoyaltyPoints   int       `json:"loyalty_points"`
	AttendanceCount int       `json:"attendance_count"`
	GallerySize     int       `json:"gallery_size"`
	CreatedAt       time.Time `json:"created_at"`
}

func identityView(i *database.Identity) identityJSON {
	return identityJSON{
		ID:              i.ID,
		Name:            i.Name,
		Phone:           i.Phone,
		LoyaltyPoints:   i.LoyaltyPoints,
		AttendanceCount: i.AttendanceCount,
		GallerySize:     i.GallerySize(),
		CreatedAt:       i.CreatedAt,
	}
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.service.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	if mustGetBool(cmd, "json") {
		views := make([]identityJSON, len(identities))
		for i := range identities {
			views[i] = identityView(&identities[i])
		}
		return printJSON(views)
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVISITS\tPOINTS\tGALLERY")
	fmt.Fprintln(w, "--\t----\t------\t------\t-------")
	for _, i := range identities {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", i.ID, i.Name, i.AttendanceCount, i.LoyaltyPoints, i.GallerySize())
	}
	w.Flush()

	fmt.Printf("\nTotal: %d identities\n", len(identities))
	return nil
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.FindIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("identity %q: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(identityView(identity))
	}

	fmt.Printf("ID:         %s\n", identity.ID)
	fmt.Printf("Name:       %s\n", identity.Name)
	if identity.Phone != "" {
		fmt.Printf("Phone:      %s\n", identity.Phone)
	}
	fmt.Printf("Visits:     %d\n", identity.AttendanceCount)
	fmt.Printf("Points:     %d\n", identity.LoyaltyPoints)
	fmt.Printf("Gallery:    %d embeddings\n", identity.GallerySize())
	fmt.Printf("Enrolled:   %s\n", identity.CreatedAt.Local().Format(time.DateTime))
	return nil
}

func runIdentityRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.FindIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("identity %q: %w", args[0], err)
	}

	phone := mustGetString(cmd, "phone")
	if phone == "" {
		phone = identity.Phone
	}

	renamed, err := a.service.RenameIdentity(ctx, identity.ID, mustGetString(cmd, "name"), phone)
	if err != nil {
		return fmt.Errorf("failed to rename identity: %w", err)
	}
	fmt.Printf("Renamed %s to %s\n", identity.Name, renamed.Name)
	return nil
}

func runIdentityDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.FindIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("identity %q: %w", args[0], err)
	}

	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete %s (%s) with %d attendance record(s)? [y/N]: ",
			identity.Name, identity.ID, identity.AttendanceCount)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.service.DeleteIdentity(ctx, identity.ID); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	fmt.Printf("Deleted %s.\n", identity.Name)
	return nil
}

func runIdentityAttendance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.FindIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("identity %q: %w", args[0], err)
	}
	records, err := a.service.ListAttendance(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to list attendance: %w", err)
	}

	days := make([]string, len(records))
	for i, r := range records {
		days[i] = database.FormatDay(r.Day)
	}
	if mustGetBool(cmd, "json") {
		return printJSON(days)
	}

	fmt.Printf("%s: %d day(s), %d point(s)\n", identity.Name, identity.AttendanceCount, identity.LoyaltyPoints)
	for _, d := range days {
		fmt.Printf("  %s\n", d)
	}
	return nil
}

func runIdentityLookalikes(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, os.Stderr, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.FindIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("identity %q: %w", args[0], err)
	}
	found, err := a.service.Lookalikes(ctx, identity.ID, mustGetInt(cmd, "k"))
	if err != nil {
		return fmt.Errorf("failed to find lookalikes: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(found)
	}
	if len(found) == 0 {
		fmt.Println("No other identities to compare with.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDISTANCE\tFLAG")
	fmt.Fprintln(w, "--\t----\t--------\t----")
	for _, l := range found {
		flag := ""
		if l.Suspicious {
			flag = "possible duplicate"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n", l.IdentityID, l.Name, l.Distance, flag)
	}
	w.Flush()
	return nil
}
