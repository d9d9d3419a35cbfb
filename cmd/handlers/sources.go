package handlers

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
)

// NewSourcesCmd creates the sources command
func NewSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured news sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSources(config.GetFeeds().Sources)
		},
	}
}

func listSources(sources []config.Source) error {
	if len(sources) == 0 {
		fmt.Println("No sources configured. Add them under feeds.sources in the config file.")
		return nil
	}

	sorted := append([]config.Source(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tOFFICIAL\tURL")
	for _, s := range sorted {
		official := ""
		if s.Official {
			official = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Domain, official, s.URL)
	}
	return w.Flush()
}
