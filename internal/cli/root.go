// Package cli implements the dsam CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/config"
	"github.com/rcliao/dsam/internal/engine"
	"github.com/rcliao/dsam/internal/heuristic"
	"github.com/rcliao/dsam/internal/notify"
	"github.com/rcliao/dsam/internal/store"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "dsam",
	Short: "Differential storage and associative memory",
	Long:  "Compressed, associatively indexed memory for game and agent conversations. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $DSAM_DB or ~/.dsam/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON config file (env DSAM_* overrides it)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.ResolveDBPath())
}

// session is an engine restored from the SQLite snapshot. Close flushes the
// engine back and closes the database.
type session struct {
	*engine.Engine
	db  *store.SQLiteStore
	bus *notify.Bus
}

func openEngine(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.ResolveDBPath())
	if err != nil {
		return nil, err
	}
	bus := notify.NewBus(cfg.BusBuffer)

	e, err := engine.New(cfg, heuristic.TokenEstimator{}, heuristic.Compressor{}, heuristic.Scorer{},
		engine.WithPersister(db), engine.WithNotifier(bus))
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := e.Restore(ctx); err != nil {
		e.Close()
		db.Close()
		return nil, err
	}
	return &session{Engine: e, db: db, bus: bus}, nil
}

func (s *session) Close() {
	if err := s.Engine.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error: flush: %v\n", err)
	}
	s.bus.Close()
	s.db.Close()
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
