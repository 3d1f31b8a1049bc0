package main

import (
	"fmt"

	"github.com/hyperengineering/fieldsync/internal/types"
	"github.com/spf13/cobra"
)

var (
	userEmail       string
	userDisplayName string

	scanUser      string
	scanPlant     string
	scanNotes     string
	scanImagePath string
	scanLatitude  float64
	scanLongitude float64

	diagnosisScan       string
	diagnosisDisease    string
	diagnosisConfidence float64
	diagnosisSeverity   string
	diagnosisTreatment  string
	diagnosisModel      string

	notificationUser string
	tipUnbookmark    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and queue it for push",
	Args:  cobra.NoArgs,
	RunE:  runUserCreate,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Capture and list plant scans",
}

var scanCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a scan and queue it for push",
	Args:  cobra.NoArgs,
	RunE:  runScanCreate,
}

var scanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans",
	Args:  cobra.NoArgs,
	RunE:  runScanList,
}

var diagnosisCmd = &cobra.Command{
	Use:   "diagnosis",
	Short: "Record scan diagnoses",
}

var diagnosisCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Attach a diagnosis to a scan and queue it for push",
	Args:  cobra.NoArgs,
	RunE:  runDiagnosisCreate,
}

var notificationCmd = &cobra.Command{
	Use:   "notification",
	Short: "List and acknowledge notifications",
}

var notificationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	Args:  cobra.NoArgs,
	RunE:  runNotificationList,
}

var notificationReadCmd = &cobra.Command{
	Use:   "read <local-id>",
	Short: "Mark a notification read",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationRead,
}

var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "List and bookmark care tips",
}

var tipListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tips",
	Args:  cobra.NoArgs,
	RunE:  runTipList,
}

var tipBookmarkCmd = &cobra.Command{
	Use:   "bookmark <local-id>",
	Short: "Bookmark a tip",
	Args:  cobra.ExactArgs(1),
	RunE:  runTipBookmark,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <local-id>",
	Short: "Soft-delete a record and queue the tombstone for push",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelete,
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userCreateCmd.Flags().StringVar(&userDisplayName, "name", "", "Display name")
	_ = userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd)

	scanCreateCmd.Flags().StringVar(&scanUser, "user", "", "Local id of the owning user")
	scanCreateCmd.Flags().StringVar(&scanPlant, "plant", "", "Plant name")
	scanCreateCmd.Flags().StringVar(&scanNotes, "notes", "", "Free-form notes")
	scanCreateCmd.Flags().StringVar(&scanImagePath, "image", "", "Path of the captured image")
	scanCreateCmd.Flags().Float64Var(&scanLatitude, "lat", 0, "Latitude")
	scanCreateCmd.Flags().Float64Var(&scanLongitude, "lon", 0, "Longitude")
	_ = scanCreateCmd.MarkFlagRequired("user")
	scanListCmd.Flags().StringVar(&scanUser, "user", "", "Only scans of this user")
	scanCmd.AddCommand(scanCreateCmd)
	scanCmd.AddCommand(scanListCmd)

	diagnosisCreateCmd.Flags().StringVar(&diagnosisScan, "scan", "", "Local id of the scan")
	diagnosisCreateCmd.Flags().StringVar(&diagnosisDisease, "disease", "", "Disease name")
	diagnosisCreateCmd.Flags().Float64Var(&diagnosisConfidence, "confidence", 0, "Confidence between 0 and 1")
	diagnosisCreateCmd.Flags().StringVar(&diagnosisSeverity, "severity", "", "Severity")
	diagnosisCreateCmd.Flags().StringVar(&diagnosisTreatment, "treatment", "", "Suggested treatment")
	diagnosisCreateCmd.Flags().StringVar(&diagnosisModel, "model", "", "Classifier model version")
	_ = diagnosisCreateCmd.MarkFlagRequired("scan")
	_ = diagnosisCreateCmd.MarkFlagRequired("disease")
	diagnosisCmd.AddCommand(diagnosisCreateCmd)

	notificationListCmd.Flags().StringVar(&notificationUser, "user", "", "Only notifications of this user")
	notificationCmd.AddCommand(notificationListCmd)
	notificationCmd.AddCommand(notificationReadCmd)

	tipBookmarkCmd.Flags().BoolVar(&tipUnbookmark, "remove", false, "Remove the bookmark instead")
	tipCmd.AddCommand(tipListCmd)
	tipCmd.AddCommand(tipBookmarkCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.CreateUser(cmd.Context(), types.User{
		Email:       userEmail,
		DisplayName: userDisplayName,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return printCreated(cmd, u.LocalID, u)
}

func runScanCreate(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	sc := types.Scan{
		UserLocalID: scanUser,
		PlantName:   scanPlant,
		Notes:       scanNotes,
		ImagePath:   scanImagePath,
	}
	if cmd.Flags().Changed("lat") {
		sc.Latitude = &scanLatitude
	}
	if cmd.Flags().Changed("lon") {
		sc.Longitude = &scanLongitude
	}

	created, err := s.CreateScan(cmd.Context(), sc)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return printCreated(cmd, created.LocalID, created)
}

func runScanList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	scans, err := s.ListScans(cmd.Context(), scanUser)
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"scans": scans, "total": len(scans)})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tPLANT\tSTATUS\tCAPTURED")
	for _, sc := range scans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sc.LocalID, orDash(sc.PlantName), sc.SyncStatus, formatTime(&sc.CapturedAt))
	}
	return w.Flush()
}

func runDiagnosisCreate(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.CreateDiagnosis(cmd.Context(), types.Diagnosis{
		ScanLocalID:  diagnosisScan,
		DiseaseName:  diagnosisDisease,
		Confidence:   diagnosisConfidence,
		Severity:     diagnosisSeverity,
		Treatment:    diagnosisTreatment,
		ModelVersion: diagnosisModel,
	})
	if err != nil {
		return fmt.Errorf("create diagnosis: %w", err)
	}
	return printCreated(cmd, d.LocalID, d)
}

func runNotificationList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	notifications, err := s.ListNotifications(cmd.Context(), notificationUser)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"notifications": notifications, "total": len(notifications)})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tTITLE\tREAD\tSTATUS")
	for _, n := range notifications {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", n.LocalID, n.Title, n.IsRead, n.SyncStatus)
	}
	return w.Flush()
}

func runNotificationRead(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.MarkNotificationRead(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked notification %s read.\n", n.LocalID)
	return nil
}

func runTipList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	tips, err := s.ListTips(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tips: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"tips": tips, "total": len(tips)})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tTITLE\tCATEGORY\tBOOKMARKED")
	for _, t := range tips {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.LocalID, t.Title, orDash(t.Category), t.IsBookmarked)
	}
	return w.Flush()
}

func runTipBookmark(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.SetTipBookmarked(cmd.Context(), args[0], !tipUnbookmark)
	if err != nil {
		return fmt.Errorf("bookmark tip: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), t)
	}
	if t.IsBookmarked {
		fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked tip %s.\n", t.LocalID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed bookmark from tip %s.\n", t.LocalID)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	table, localID := args[0], args[1]

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SoftDelete(cmd.Context(), table, localID); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, localID, err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"table":    table,
			"local_id": localID,
			"deleted":  true,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s.\n", table, localID)
	return nil
}

// printCreated reports a newly captured record by its local id.
func printCreated(cmd *cobra.Command, localID string, v any) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), v)
	}
	fmt.Fprintln(cmd.OutOrStdout(), localID)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
