package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-counter",
	Short: "A face-based attendance counter",
	Long: `Face Counter polls a face detection service on a fixed cadence and
counts unique visitors. Faces are matched by embedding similarity within
the running session and against a durable face memory, so a returning
visitor keeps their identity across sessions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
