package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-counter/internal/config"
	"github.com/kozaktomas/face-counter/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the face memory",
	Long: `Inspect and maintain the durable face memory.

The face memory holds one record per known person: their embedding,
estimated age and gender, detection counters and the sessions they were
seen in. It outlives individual sessions.`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show face memory totals",
	RunE:  runMemoryStats,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remembered faces",
	RunE:  runMemoryList,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all remembered faces",
	Long: `Delete all remembered faces. This cannot be undone; every visitor
will count as new in the next session.`,
	RunE: runMemoryClear,
}

var memoryExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the face memory to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryExport,
}

var memoryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import face memory records from a JSON file",
	Long: `Import face memory records from a JSON file written by "memory export".
Records whose id already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryImport,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryImportCmd)

	memoryClearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := memory.CollectStats(ctx, store)
	if err != nil {
		return fmt.Errorf("reading face memory: %w", err)
	}

	fmt.Printf("Known faces:      %d\n", stats.TotalFaces)
	fmt.Printf("Total detections: %d\n", stats.TotalDetections)
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("reading face memory: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("Face memory is empty.")
		return nil
	}

	for i := range records {
		rec := &records[i]
		lastSeen := time.UnixMilli(rec.LastDetected).Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-6s  age %2.0f  seen %3dx  last %s  sessions %d\n",
			rec.ID, rec.Gender, rec.Age, rec.DetectionCount, lastSeen, len(rec.SessionIDs))
	}
	fmt.Printf("\nTotal: %d face(s)\n", len(records))
	return nil
}

func runMemoryClear(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := memory.CollectStats(ctx, store)
	if err != nil {
		return fmt.Errorf("reading face memory: %w", err)
	}

	if stats.TotalFaces == 0 {
		fmt.Println("Face memory is already empty.")
		return nil
	}

	if !skipConfirm && !confirmAction(fmt.Sprintf("\nDelete all %d remembered face(s)? [y/N]: ", stats.TotalFaces)) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing face memory: %w", err)
	}
	if cfg.Database.HNSWIndexPath != "" {
		// Drop the stale on-disk index alongside the records.
		_ = os.Remove(cfg.Database.HNSWIndexPath)
	}

	fmt.Printf("Done! Deleted %d face(s)\n", stats.TotalFaces)
	return nil
}

func runMemoryExport(cmd *cobra.Command, args []string) error {
	outPath := args[0]

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("reading face memory: %w", err)
	}
	if len(records) == 0 {
		return errors.New("face memory is empty, nothing to export")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Exporting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	encoder := json.NewEncoder(f)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("write record %s: %w", records[i].ID, err)
		}
		_ = bar.Add(1)
	}
	fmt.Printf("\nExported %d face(s) to %s\n", len(records), outPath)
	return nil
}

func runMemoryImport(cmd *cobra.Command, args []string) error {
	inPath := args[0]

	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inPath, err)
	}
	defer f.Close()

	var incoming []memory.Record
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var rec memory.Record
		if err := decoder.Decode(&rec); err != nil {
			return fmt.Errorf("parse %s: %w", inPath, err)
		}
		if rec.ID == "" || len(rec.Embedding) == 0 {
			return fmt.Errorf("parse %s: record without id or embedding", inPath)
		}
		incoming = append(incoming, rec)
	}
	if len(incoming) == 0 {
		return fmt.Errorf("no records found in %s", inPath)
	}

	bar := progressbar.NewOptions(len(incoming),
		progressbar.OptionSetDescription("Importing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	imported, skipped := 0, 0
	for i := range incoming {
		err := store.Put(ctx, &incoming[i])
		switch {
		case errors.Is(err, memory.ErrDuplicateKey):
			skipped++
		case err != nil:
			return fmt.Errorf("import record %s: %w", incoming[i].ID, err)
		default:
			imported++
		}
		_ = bar.Add(1)
	}

	fmt.Printf("\nDone! Imported %d face(s), skipped %d duplicate(s)\n", imported, skipped)
	return nil
}
