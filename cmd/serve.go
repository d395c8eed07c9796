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
	"github.com/kozaktomas/face-counter/internal/observability"
	"github.com/kozaktomas/face-counter/internal/session"
	"github.com/kozaktomas/face-counter/internal/tracking"
	"github.com/kozaktomas/face-counter/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Counter web server.
The server exposes session control, live statistics over SSE, the face
memory, CSV export and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
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

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(controller, store, index, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if err := controller.Stop(); err == nil {
			fmt.Println("Session stopped")
		}
		saveIndex(index)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Counter on http://%s:%d\n", host, port)
	fmt.Printf("Detector: %s, tick interval %s\n", cfg.Detector.URL, cfg.Session.TickInterval)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
