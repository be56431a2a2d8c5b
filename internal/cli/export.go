package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export persisted memories as a JSON array. Filter by memory type with --type.",
		Run:   runExport,
	}

	cmd.Flags().String("type", "", "Filter by memory type")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), model.MemoryType(memType))
	if err != nil {
		exitErr("export", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	printJSON(memories)
}
