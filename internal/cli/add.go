package cli

import (
	"fmt"
	"strings"

	"github.com/memctl/memctl/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	addProject string
	addKey     string
	addTags    []string
)

var addCmd = &cobra.Command{
	Use:   "add [content...]",
	Short: "Store a memory",
	Long: `Store a memory in a project. The full-text index updates with the
write; the embedding is generated in the background.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addProject, "project", "p", "", "project id (required)")
	addCmd.Flags().StringVarP(&addKey, "key", "k", "", "path-like label, e.g. context/auth/decisions")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "tags (repeatable)")
	addCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	m := &memory.Memory{
		ProjectID: addProject,
		Key:       addKey,
		Content:   strings.Join(args, " "),
		Tags:      addTags,
	}
	if err := a.store.Create(cmd.Context(), m); err != nil {
		return err
	}

	fmt.Println(m.ID)
	return nil
}
