package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/thumbcache/internal/capture"
)

var renderCmd = &cobra.Command{
	Use:   "render [id-pattern]",
	Short: "Render manifest entities into the cache",
	Long: `Render every manifest entity whose id matches the glob pattern and wait
for the renders to finish. Entities with a valid cached image are skipped
unless --force is given.

Examples:
  thumbcache render -m keyrings.yaml
  thumbcache render -m keyrings.yaml 'fox-*'
  thumbcache render -m keyrings.yaml --force k1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

var renderForce bool

func init() {
	renderCmd.Flags().BoolVarP(&renderForce, "force", "f", false, "Discard cached images and failure counts before rendering")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}
	return a.render(cmd.OutOrStdout(), manifestPath, pattern, renderForce)
}

// render requests a capture for every matching entity, waits for all of them
// and prints one line per entity.
func (a *app) render(out io.Writer, manifest, pattern string, force bool) error {
	m, err := a.loadManifest(manifest)
	if err != nil {
		return err
	}
	entities, err := m.Filter(pattern)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		fmt.Fprintln(out, "No matching entities")
		return nil
	}

	requests := make([]capture.Request, len(entities))
	for i, e := range entities {
		if force {
			a.cache.Delete(e.ID, e.CacheVariant())
			a.coord.ResetFailures(e.ID)
		}
		requests[i] = a.coord.RequestCapture(e)
	}
	a.coord.Wait()

	failed := 0
	for i, e := range entities {
		result := renderResult(a, e, requests[i])
		if result != "cached" && result != "rendered" {
			failed++
		}
		fmt.Fprintf(out, "%-24s %s\n", fitColumn(e.ID, 24), result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entities have no cached image", failed, len(entities))
	}
	return nil
}

func renderResult(a *app, e capture.Entity, req capture.Request) string {
	switch req {
	case capture.Cached:
		return "cached"
	case capture.SkippedExhausted:
		return "skipped (retries exhausted)"
	case capture.Rejected:
		return "rejected"
	}
	if a.cache.Exists(e.ID, e.CacheVariant()) {
		return "rendered"
	}
	return fmt.Sprintf("failed (%d/%d attempts)", a.coord.Failures(e.ID), a.cfg.Capture.MaxRetries)
}
