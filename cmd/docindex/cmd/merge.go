package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

func newMergeCmd(a *app) *cobra.Command {
	var (
		out         string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "merge --out <path> <index>...",
		Short: "Combine indexes built with the same provider",
		Long: `Merge reads every input index and writes their union to --out.
A chunk present in several inputs takes its value from the later input, and a
document re-indexed in a later input drops chunks it no longer has. Inputs
must share provider, model, dimension and metric.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if out == "" {
				return apperrors.ValidationError("--out is required", nil)
			}
			saveOpts, err := saveOptions(cfg, compression)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			snaps := make([]store.Snapshot, 0, len(args))
			for _, path := range args {
				idx, hdr, err := store.Load(ctx, path)
				if err != nil {
					return err
				}
				snaps = append(snaps, store.Snapshot{Index: idx, Header: hdr})
			}

			merged, hdr, err := store.Merge(snaps)
			if err != nil {
				return err
			}
			if err := ensureDir(out); err != nil {
				return err
			}
			if err := store.Save(ctx, out, merged, hdr, saveOpts...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Merged %d indexes into %s: %d records, %d documents\n",
				len(args), out, merged.Len(), len(hdr.Documents))
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output index path")
	cmd.Flags().StringVar(&compression, "compression", "", "File codec: none or zstd")

	return cmd
}
