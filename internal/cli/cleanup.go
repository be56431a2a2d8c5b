package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired low-relevance memories",
		Long:  "Run one retention pass: memories older than the memory window with relevance below 0.5 are removed.",
		Run:   runCleanup,
	}

	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	s, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	removed, err := s.PerformCleanup(cmd.Context())
	if err != nil {
		exitErr("cleanup", err)
	}
	fmt.Printf(`{"ok":true,"removed":%d}`+"\n", removed)
}
