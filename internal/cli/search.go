package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/memctl/memctl/pkg/search"
	"github.com/spf13/cobra"
)

var (
	searchProject string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Run a hybrid search against a project's memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar [memory-id]",
	Short: "Find memories similar to a stored memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	searchCmd.Flags().StringVarP(&searchProject, "project", "p", "", "project id (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results")
	searchCmd.MarkFlagRequired("project")

	similarCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(similarCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit := searchLimit
	if limit <= 0 {
		limit = a.cfg.Search.DefaultLimit
	}

	result, err := a.engine.HybridSearch(cmd.Context(), searchProject, strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit := searchLimit
	if limit <= 0 {
		limit = a.cfg.Search.DefaultLimit
	}

	ids, err := a.engine.Similar(cmd.Context(), args[0], limit)
	if errors.Is(err, search.ErrUnavailable) {
		fmt.Println("no embedding stored for this memory yet")
		return nil
	}
	if err != nil {
		return err
	}

	return printJSON(ids)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
