package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/mpath/internal/infra/storage/postgres"
)

var forgetCmd = &cobra.Command{
	Use:   "forget [disk_name]",
	Short: "Remove a disk from the device registry",
	Args:  cobra.ExactArgs(1),
	Run:   runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) {
	name := args[0]
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewDeviceRepo(db)
	d, err := repo.Get(ctx, name)
	if err != nil {
		slog.Error("Failed to look up device", "error", err)
		os.Exit(1)
	}
	if d == nil {
		fmt.Printf("No device named %s in the registry\n", name)
		return
	}

	if err := repo.Delete(ctx, name); err != nil {
		slog.Error("Failed to forget device", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s (subsystem %d, nsid %d) from the registry\n", d.Name, d.Subsystem, d.NSID)
}
