package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove entities from the cache and the widget index",
	Long: `Remove every cached variant of each entity and drop it from the widget
metadata index, e.g. after the entity was deleted or transferred away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	return a.remove(cmd.OutOrStdout(), args)
}

func (a *app) remove(out io.Writer, ids []string) error {
	for _, id := range ids {
		a.cache.Remove(id)
		a.coord.ResetFailures(id)
		fmt.Fprintf(out, "Removed %s\n", id)
	}
	return nil
}
