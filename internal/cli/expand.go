package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "expand <id>",
		Short: "Reconstruct a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runExpand,
	}

	cmd.Flags().String("detail", "", "Detail: minimal, balanced, detailed (default: summary_detail from config)")

	RootCmd.AddCommand(cmd)
}

func runExpand(cmd *cobra.Command, args []string) {
	detail, _ := cmd.Flags().GetString("detail")

	s, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	x, err := s.ExpandMemory(cmd.Context(), args[0], model.Detail(detail))
	if err != nil {
		exitErr("expand", err)
	}
	printJSON(x)
}
