package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/mpath/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the aggregate disks recorded in the device registry",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	devices, err := postgres.NewDeviceRepo(db).List(ctx)
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DISK\tSUBSYS\tNSID\tUUID\tPATHS\tPUBLISHED")
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			d.Name, d.Subsystem, d.NSID, d.UUID,
			strings.Join(d.PathList(), " "),
			d.PublishedAt.Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}
