package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import memories from an export",
		Long: "Load a JSON array produced by export into the database. Memories with an existing id are replaced; " +
			"entries without an id or content are skipped. Association limits are applied when the engine next restores.",
		Run: runImport,
	}

	cmd.Flags().String("file", "", "Read from this file instead of stdin")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")

	var src io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			exitErr("open import file", err)
		}
		defer f.Close()
		src = f
	}

	var memories []model.Memory
	if err := json.NewDecoder(src).Decode(&memories); err != nil {
		exitErr("decode export", err)
	}

	db, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer db.Close()

	imported, err := db.Import(cmd.Context(), memories)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(map[string]any{
		"ok":       true,
		"imported": imported,
		"skipped":  len(memories) - imported,
	})
}
