package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/detector"
	"github.com/kozaktomas/face-counter/internal/export"
	"github.com/kozaktomas/face-counter/internal/observability"
	"github.com/kozaktomas/face-counter/internal/session"
	"github.com/kozaktomas/face-counter/internal/tracking"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a counting session in the terminal",
	Long: `Run a counting session without the web server. The session starts
immediately, prints a status line as persons are detected, and stops on
Ctrl+C. The final statistics are printed and the attendance list can be
written to a CSV file.

Example:
  face-counter run --out attendance.csv`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("out", "", "Write the attendance CSV to this file on stop")
}

func runRun(cmd *cobra.Command, args []string) error {
	outPath := mustGetString(cmd, "out")

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	index := initIndex(ctx, store, cfg.Database.HNSWIndexPath)

	tracker := tracking.New(tracking.Config{
		SessionThreshold: cfg.Tracking.SessionThreshold,
		MemoryThreshold:  cfg.Tracking.MemoryThreshold,
		Cooldown:         cfg.Tracking.Cooldown,
		ChildAgeMax:      cfg.Tracking.ChildAgeMax,
	}, store, index)

	det := detector.NewClient(cfg.Detector.URL, cfg.Tracking.EmbeddingDim)
	snapshots := session.NewSnapshotStore(cfg.Session.SnapshotPath)
	metrics := observability.NewMetrics("face_counter")
	controller := session.NewController(tracker, det, snapshots, metrics, cfg.Session.TickInterval)

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	fmt.Printf("Session running, detector %s, tick interval %s\n", cfg.Detector.URL, cfg.Session.TickInterval)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(2 * time.Second)
	defer statusTicker.Stop()

	for running := true; running; {
		select {
		case <-sigChan:
			running = false
		case <-statusTicker.C:
			fmt.Printf("\r\033[K%s", controller.Status())
		}
	}
	fmt.Println()

	if err := controller.Stop(); err != nil {
		return fmt.Errorf("stopping session: %w", err)
	}
	saveIndex(index)

	data := controller.Snapshot()
	printSessionSummary(data)

	if outPath == "" {
		return nil
	}
	if err := writeAttendanceCSV(outPath, data.Persons); err != nil {
		return err
	}
	fmt.Printf("Attendance written to %s\n", outPath)
	return nil
}

func printSessionSummary(data session.Data) {
	fmt.Println("\nSession summary")
	fmt.Printf("  Started: %s\n", data.StartTime.Format(time.RFC3339))
	if data.EndTime != nil {
		fmt.Printf("  Ended:   %s\n", data.EndTime.Format(time.RFC3339))
	}
	fmt.Printf("  Unique persons: %d\n", data.Stats.UniquePersons)
	fmt.Printf("  Children: %d, Adults: %d\n", data.Stats.Children, data.Stats.Adults)
	fmt.Printf("  Males: %d, Females: %d\n", data.Stats.Males, data.Stats.Females)
	fmt.Printf("  Appearances: %d\n", data.Stats.TotalAppearances)
}

func writeAttendanceCSV(path string, persons []*tracking.Person) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := export.WriteCSV(f, persons); err != nil {
		return fmt.Errorf("write attendance CSV: %w", err)
	}
	return nil
}
