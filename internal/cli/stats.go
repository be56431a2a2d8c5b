package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/engine"
	"github.com/rcliao/dsam/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database and engine statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	dbStats, err := s.db.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(struct {
		Database *store.Stats `json:"database"`
		Engine   engine.Stats `json:"engine"`
	}{dbStats, s.Stats()})
}
