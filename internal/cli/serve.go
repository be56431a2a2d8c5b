package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retention scheduler",
		Long:  "Restore the engine, run retention on its schedule and print engine events as JSON lines until interrupted.",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openEngine(ctx)
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	s.StartRetention()
	for {
		ev, ok := s.bus.Subscribe(ctx)
		if !ok {
			break
		}
		b, _ := json.Marshal(ev)
		fmt.Println(string(b))
	}
	if n := s.bus.Dropped(); n > 0 {
		log.Printf("[DSAM] %d notifications dropped", n)
	}
}
