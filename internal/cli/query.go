package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/dsam/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Recall memories",
		Long:  "Score every stored memory against the query text and context, and print the best matches.",
		Run:   runQuery,
	}

	cmd.Flags().String("characters", "", "Comma-separated character ids")
	cmd.Flags().String("locations", "", "Comma-separated location ids")
	cmd.Flags().StringP("themes", "t", "", "Comma-separated themes")
	cmd.Flags().String("since", "", "Only memories at or after this RFC3339 time")
	cmd.Flags().String("until", "", "Only memories at or before this RFC3339 time")
	cmd.Flags().IntP("limit", "l", engine.DefaultLimit, "Max results")
	cmd.Flags().Float64("min-relevance", engine.DefaultMinRelevance, "Minimum query relevance")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	characters, _ := cmd.Flags().GetString("characters")
	locations, _ := cmd.Flags().GetString("locations")
	themes, _ := cmd.Flags().GetString("themes")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")
	minRel, _ := cmd.Flags().GetFloat64("min-relevance")

	q := engine.Query{
		Query: strings.Join(args, " "),
		Context: engine.QueryContext{
			CharacterIDs: splitList(characters),
			LocationIDs:  splitList(locations),
			Themes:       splitList(themes),
		},
		Limit:        limit,
		MinRelevance: &minRel,
	}
	if since != "" || until != "" {
		tw := &engine.TimeWindow{}
		var err error
		if since != "" {
			if tw.Start, err = time.Parse(time.RFC3339, since); err != nil {
				exitErr("parse --since", err)
			}
		}
		if until != "" {
			if tw.End, err = time.Parse(time.RFC3339, until); err != nil {
				exitErr("parse --until", err)
			}
		}
		q.Context.TimeWindow = tw
	}

	s, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer s.Close()

	res, err := s.QueryMemories(cmd.Context(), q)
	if err != nil {
		exitErr("query", err)
	}
	printJSON(res)
}
