package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marmos91/coordcore/internal/cli/output"
	"github.com/marmos91/coordcore/internal/cli/prompt"
	"github.com/marmos91/coordcore/pkg/config"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or end sessions known to a storage backend",
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions known to the storage backend",
	RunE:  runSessionLs,
}

var sessionEndForce bool

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session, releasing its ephemeral entries and locks",
	Long: `End a session by its hex-encoded identifier (as printed by "session ls").

Ending a session the owning process still considers alive is a
destructive operation: any locks it held are released to the next
waiter and its ephemeral entries are deleted once coordd observes the
change. Use this to recover from a node that crashed without its
lease expiring on its own, not as routine cleanup.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionEnd,
}

func init() {
	sessionEndCmd.Flags().BoolVar(&sessionEndForce, "force", false, "Skip the confirmation prompt")
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}

func openSessionBackend(ctx context.Context) (config.Backend, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	backend, err := config.BuildBackend(ctx, cfg.Storage, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage backend: %w", err)
	}
	return backend, nil
}

func runSessionLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := openSessionBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	records, err := backend.ScanSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}

	table := output.NewTableData("ID", "ALIVE", "LEASE END", "ENTRIES")
	now := time.Now()
	for _, rec := range records {
		table.AddRow(
			rec.SessionID.String(),
			boolLabel(rec.IsAlive(now), "yes", "no"),
			rec.LeaseEnd.Format(time.RFC3339),
			fmt.Sprintf("%d", len(rec.EntryPaths)),
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", args[0], err)
	}
	id := session.FromBytes(raw)

	if !sessionEndForce {
		ok, err := prompt.Confirm(fmt.Sprintf("End session %s", id), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := openSessionBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	sessions := session.NewManager(backend, slog.Default())
	if err := sessions.End(ctx, id); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	fmt.Printf("session %s ended\n", id)
	return nil
}
