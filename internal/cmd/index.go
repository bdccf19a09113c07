package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/thumbcache/internal/rendercache"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the widget metadata index",
	Long: `Print the metadata index read by widget surfaces. Each record names an
entity with a cached thumbnail and the path of that thumbnail relative to
the cache root.`,
	RunE: runIndex,
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync <id> <png-file>",
	Short: "Store an externally rendered thumbnail and index it",
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexSync,
}

var indexSyncName string

func init() {
	indexSyncCmd.Flags().StringVar(&indexSyncName, "name", "", "Display name (default: the id)")
	indexCmd.AddCommand(indexSyncCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	return a.printIndex(cmd.OutOrStdout())
}

func (a *app) printIndex(out io.Writer) error {
	records := a.cache.LoadIndex()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	return a.syncFile(cmd.OutOrStdout(), args[0], indexSyncName, args[1])
}

// syncFile stores the PNG at path as the thumbnail of id after validating it.
func (a *app) syncFile(out io.Writer, id, name, path string) error {
	if err := rendercache.ValidateID(id); err != nil {
		return err
	}
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return fmt.Errorf("read thumbnail: %w", err)
	}
	if _, err := a.check.Check(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if name == "" {
		name = id
	}
	a.cache.Sync(id, name, data)
	if !a.cache.Exists(id, rendercache.Thumbnail) {
		return fmt.Errorf("failed to store thumbnail for %s", id)
	}
	fmt.Fprintf(out, "Indexed %s -> %s\n", id, a.cache.RelativePath(id, rendercache.Thumbnail))
	return nil
}
