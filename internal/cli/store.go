package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/engine"
	"github.com/rcliao/dsam/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Ingest a conversation",
		Long:  "Compress, associate and store a conversation. Content can be a positional arg or piped via stdin; JSON is stored as-is, anything else as a string.",
		Run:   runStore,
	}

	cmd.Flags().StringP("participants", "p", "", "Comma-separated participant ids")
	cmd.Flags().StringP("location", "l", "", "Location id")
	cmd.Flags().String("time", "", "RFC3339 time of the exchange (default: now)")
	cmd.Flags().StringP("themes", "t", "", "Comma-separated themes")
	cmd.Flags().String("tone", "neutral", "Emotional tone: positive, negative, neutral, tense")
	cmd.Flags().String("importance", "moderate", "Importance: minor, moderate, major, critical")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	participants, _ := cmd.Flags().GetString("participants")
	location, _ := cmd.Flags().GetString("location")
	at, _ := cmd.Flags().GetString("time")
	themes, _ := cmd.Flags().GetString("themes")
	tone, _ := cmd.Flags().GetString("tone")
	importance, _ := cmd.Flags().GetString("importance")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("store", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	if !model.ValidTones[model.Tone(tone)] {
		exitErr("store", fmt.Errorf("invalid tone %q", tone))
	}
	if !model.ValidImportances[model.Importance(importance)] {
		exitErr("store", fmt.Errorf("invalid importance %q", importance))
	}

	cc := engine.ConversationContext{
		Participants:  splitList(participants),
		Location:      location,
		Themes:        splitList(themes),
		EmotionalTone: model.Tone(tone),
		Importance:    model.Importance(importance),
	}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			exitErr("parse --time", err)
		}
		cc.Time = t
	}

	s, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	mem, err := s.StoreConversation(cmd.Context(), []byte(content), cc)
	if err != nil {
		exitErr("store", err)
	}
	printJSON(mem)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
