package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marmos91/coordcore/internal/cli/output"
	"github.com/marmos91/coordcore/pkg/config"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/path"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Inspect a coordination core storage backend",
	Long: `Open the storage backend a coordination core node is configured to use
and report its basic state: backend kind, whether the root entry exists,
and the number of sessions it currently knows about.

This talks to the backend directly; it does not require coordd to be
running, and it does not see state a running node is still holding only
in memory (local locks, the wait directory).

Examples:
  # Inspect the default configuration's backend
  coordctl status

  # Inspect a specific configuration file
  coordctl --config ./dev.yaml status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := config.BuildBackend(ctx, cfg.Storage, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer func() { _ = backend.Close() }()

	rootExists := true
	if _, err := backend.GetEntry(ctx, path.New().Escaped()); err != nil {
		if !coorderr.Is(err, coorderr.EntryNotFound) {
			return fmt.Errorf("failed to read root entry: %w", err)
		}
		rootExists = false
	}

	sessions, err := backend.ScanSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}
	alive := 0
	for _, rec := range sessions {
		if rec.IsAlive(time.Now()) {
			alive++
		}
	}

	pairs := [][2]string{
		{"Backend", cfg.Storage.Backend},
		{"Root entry", boolLabel(rootExists, "present", "absent")},
		{"Sessions known", fmt.Sprintf("%d", len(sessions))},
		{"Sessions alive", fmt.Sprintf("%d", alive)},
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func boolLabel(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
