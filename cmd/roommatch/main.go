package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/rushteam/roommatch/config/builders"
)

var version = "dev"

var (
	configPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "roommatch",
	Short:         "Roommate matching recommendations",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml); env ROOMMATCH_* overrides it")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored status output")

	rootCmd.AddCommand(migrateCmd, traitsCmd, seedCmd, registerCmd)
	rootCmd.AddCommand(recommendCmd, serveCmd, checkCmd)
	rootCmd.AddCommand(interactCmd, reportCmd, matchesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}

// parseID 解析正整数用户 ID。
func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
