package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/export"
	"github.com/kozaktomas/face-counter/internal/session"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the last session as CSV",
	Long: `Export the attendance list of the last session to a CSV file.
The session data comes from the persisted session snapshot, so the export
works after the process that ran the session has exited.

Example:
  face-counter export --out attendance.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("out", "", "Output file (defaults to attendance_<date>.csv)")
}

func runExport(cmd *cobra.Command, args []string) error {
	outPath := mustGetString(cmd, "out")

	cfg := config.Load()
	snapshots := session.NewSnapshotStore(cfg.Session.SnapshotPath)

	data, err := snapshots.Load()
	if err != nil {
		return fmt.Errorf("reading session snapshot: %w", err)
	}
	if data == nil {
		return errors.New("no session snapshot found, run a session first")
	}

	if outPath == "" {
		outPath = export.Filename(data.StartTime)
	}
	if err := writeAttendanceCSV(outPath, data.Persons); err != nil {
		return err
	}

	fmt.Printf("Exported %d person(s) to %s\n", len(data.Persons), outPath)
	return nil
}
