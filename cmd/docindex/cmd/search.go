package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	apperrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/retrieve"
	"github.com/Aman-CERP/docindex/internal/store"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		indexPath string
		limit     int
		format    string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the passages most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			err := runSearch(cmd.Context(), cmd.OutOrStdout(), a, indexPath, query, limit, format)
			if err != nil && format == "json" {
				if data, jerr := apperrors.FormatJSON(err); jerr == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&indexPath, "index", "i", "", "Index path (default from config store.path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of passages (default from config search.top_k)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")

	return cmd
}

// openRetriever loads the index at path and builds a retriever bound to the
// configured provider.
func openRetriever(ctx context.Context, cfg *config.Config, path string, m *metrics.Metrics) (*retrieve.Retriever, store.Header, embed.Provider, error) {
	opts, err := vectorOptions(cfg)
	if err != nil {
		return nil, store.Header{}, nil, err
	}
	idx, hdr, err := store.Load(ctx, path, store.WithIndexOptions(opts))
	if err != nil {
		return nil, store.Header{}, nil, err
	}
	provider, ecfg, err := newProvider(ctx, cfg, m)
	if err != nil {
		return nil, store.Header{}, nil, err
	}
	if ecfg.CacheSize > 0 {
		provider = embed.NewCached(provider, ecfg.CacheSize)
	}
	r, err := retrieve.New(retrieve.Config{
		Provider: provider,
		Index:    idx,
		Sources:  retrieve.NewFileSources(hdr.Documents),
		Metrics:  m,
	})
	if err != nil {
		_ = provider.Close()
		return nil, store.Header{}, nil, err
	}
	m.SetIndexRecords(idx.Len())
	return r, hdr, provider, nil
}

func runSearch(ctx context.Context, w io.Writer, a *app, indexPath, query string, limit int, format string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if format != "text" && format != "json" {
		return apperrors.ValidationError("--format must be text or json", nil)
	}
	if indexPath == "" {
		indexPath = cfg.Store.Path
	}
	if limit <= 0 {
		limit = cfg.Search.TopK
	}

	r, _, provider, err := openRetriever(ctx, cfg, indexPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	passages, err := r.Query(ctx, query, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(passages)
	}
	return printPassages(w, query, passages)
}

func printPassages(w io.Writer, query string, passages []retrieve.Passage) error {
	if len(passages) == 0 {
		_, err := fmt.Fprintf(w, "No results for %q\n", query)
		return err
	}
	for i, p := range passages {
		if _, err := fmt.Fprintf(w, "%d. %s [%d:%d] score=%.4f\n", i+1, p.Meta.DocumentID, p.Meta.Start, p.Meta.End, p.Score); err != nil {
			return err
		}
		switch {
		case p.Stale:
			_, _ = fmt.Fprintln(w, "   (source changed since indexing)")
		case p.Text != "":
			for _, line := range strings.Split(strings.TrimSpace(p.Text), "\n") {
				_, _ = fmt.Fprintf(w, "   %s\n", line)
			}
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}
