package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/thumbcache/internal/rendercache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached images and the widget index",
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	statusLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	statusWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

// cacheStatus is the JSON form of the status output.
type cacheStatus struct {
	Dir       string                       `json:"dir"`
	Entries   []statusEntry                `json:"entries"`
	Indexed   int                          `json:"indexed"`
	Unindexed []string                     `json:"unindexed,omitempty"`
	Index     []rendercache.MetadataRecord `json:"index"`
}

type statusEntry struct {
	ID      string `json:"id"`
	Variant string `json:"variant"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	return a.status(cmd.OutOrStdout(), statusJSON)
}

func (a *app) collectStatus() (cacheStatus, error) {
	entries, err := a.cache.Entries()
	if err != nil {
		return cacheStatus{}, err
	}
	index := a.cache.LoadIndex()

	indexed := make(map[string]bool, len(index))
	for _, r := range index {
		indexed[r.ID] = true
	}

	st := cacheStatus{Dir: a.cache.Dir(), Index: index, Indexed: len(index)}
	for _, e := range entries {
		st.Entries = append(st.Entries, statusEntry{
			ID:      e.EntityID,
			Variant: e.Variant.String(),
			Size:    e.Size,
			ModTime: e.ModTime.UTC().Format("2006-01-02 15:04:05"),
		})
		if e.Variant == rendercache.Thumbnail && !indexed[e.EntityID] {
			st.Unindexed = append(st.Unindexed, e.EntityID)
		}
	}
	return st, nil
}

func (a *app) status(out io.Writer, asJSON bool) error {
	st, err := a.collectStatus()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintln(out, statusHeaderStyle.Render("Render cache"))
	fmt.Fprintf(out, "%s %s\n", statusLabelStyle.Render("Directory:"), st.Dir)
	fmt.Fprintf(out, "%s %d\n", statusLabelStyle.Render("Cached:   "), len(st.Entries))
	fmt.Fprintf(out, "%s %d\n", statusLabelStyle.Render("Indexed:  "), st.Indexed)
	fmt.Fprintln(out)

	if len(st.Entries) == 0 {
		fmt.Fprintln(out, statusWarnStyle.Render("No cached images"))
		return nil
	}

	fmt.Fprintln(out, statusHeaderStyle.Render(fmt.Sprintf("%-24s %-10s %10s  %s", "ID", "VARIANT", "BYTES", "MODIFIED")))
	for _, e := range st.Entries {
		fmt.Fprintf(out, "%-24s %-10s %10d  %s\n", fitColumn(e.ID, 24), e.Variant, e.Size, e.ModTime)
	}

	if len(st.Unindexed) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, statusWarnStyle.Render("Not in widget index: "+strings.Join(st.Unindexed, ", ")))
	} else {
		fmt.Fprintln(out)
		fmt.Fprintln(out, statusOKStyle.Render("Widget index is up to date"))
	}
	return nil
}

// fitColumn truncates s to width terminal columns, marking the cut with "...".
func fitColumn(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
