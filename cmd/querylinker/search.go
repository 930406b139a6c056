package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/querylinker/internal/cli"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	serverURL string
	systems   []string
	limit     int
	semantic  bool
	output    string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search connected systems through a running server",
		Long: `Sends the query to a running QueryLinker server and prints the merged suggestions.
The query is all remaining arguments joined by spaces, so quoting is optional.`,
		Example: `  querylinker search database timeout
  querylinker search --systems jira,github --semantic "login fails after upgrade"
  querylinker search --output json vpn outage`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.serverURL, "server", defaultServerURL, "server URL")
	cmd.Flags().StringSliceVar(&opts.systems, "systems", nil, "systems to search (default: all configured)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", models.DefaultMaxResults, "maximum number of suggestions")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", false, "rank suggestions by semantic similarity")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text, compact, or json")
	return cmd
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(cmd *cobra.Command, opts *searchOptions, args []string) error {
	format, err := cli.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}
	query := buildSearchQuery(args)
	if query == "" {
		return models.ErrEmptyQuery
	}
	response, err := cli.NewClient(opts.serverURL).Search(context.Background(), &models.SearchRequest{
		Query:       query,
		Systems:     opts.systems,
		MaxResults:  opts.limit,
		UseSemantic: opts.semantic,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
}

func newSystemsCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "systems",
		Short: "List the systems a running server can search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			systems, err := cli.NewClient(serverURL).Systems(context.Background())
			if err != nil {
				return err
			}
			if len(systems) == 0 {
				cmd.Println("No systems configured.")
				return nil
			}
			for _, s := range systems {
				cmd.Println(s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL")
	return cmd
}
