package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/store"
)

func newInfoCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [index]",
		Short: "Show an index header without loading its vectors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			} else {
				cfg, err := a.config()
				if err != nil {
					return err
				}
				path = cfg.Store.Path
			}

			hdr, err := store.Info(cmd.Context(), path)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hdr)
			}
			return printHeader(cmd.OutOrStdout(), path, hdr)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the header as JSON")
	return cmd
}

func printHeader(w io.Writer, path string, hdr store.Header) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s (%s)\n", path, store.Backend(path))
	fmt.Fprintf(tw, "Schema:\tv%d\n", hdr.SchemaVersion)
	fmt.Fprintf(tw, "Provider:\t%s\n", hdr.Identity())
	fmt.Fprintf(tw, "Dimension:\t%d\n", hdr.Dimension)
	fmt.Fprintf(tw, "Metric:\t%s\n", hdr.Metric)
	fmt.Fprintf(tw, "Records:\t%d\n", hdr.Records)
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(hdr.CreatedAt))
	fmt.Fprintf(tw, "Updated:\t%s\n", formatTime(hdr.UpdatedAt))
	fmt.Fprintf(tw, "Documents:\t%d\n", len(hdr.Documents))

	ids := make([]string, 0, len(hdr.Documents))
	for id := range hdr.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := hdr.Documents[id]
		fmt.Fprintf(tw, "  %s\t%d chunks\t%s\n", id, d.Chunks, formatTime(d.IndexedAt))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
