package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/spf13/cobra"
)

type fileIngester interface {
	Ingest(ctx context.Context, src domain.FileSource, progress domain.ProgressObserver) (*service.IngestResult, error)
}

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest local files without going through the API",
		Long: `Extract, chunk, embed and store each file, printing a line after every stored batch.
Files already ingested with identical content are skipped.

Uses the same content cache file as the server (FINKNOW_CACHE_PATH); do not ingest
the same new file here and through a running server at the same time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer initTelemetry(cfg)()

			st, err := buildStack(ctx, cfg, stackOptions{needOpenAI: true, migrate: true})
			if err != nil {
				return err
			}
			defer st.Close()

			return ingestFiles(ctx, st.ingestion, args, cmd.OutOrStdout())
		},
	}
}

// ingestFiles processes every path even after a failure and reports how many failed.
func ingestFiles(ctx context.Context, ingester fileIngester, paths []string, w io.Writer) error {
	failed := 0
	for _, path := range paths {
		src := service.PathSource{Path: path}
		name := src.Name()

		progress := domain.ProgressFunc(func(completed, total int) {
			fmt.Fprintf(w, "%s: stored batch %d/%d\n", name, completed, total)
		})

		result, err := ingester.Ingest(ctx, src, progress)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", name, err)
			continue
		}

		if result.CacheHit {
			fmt.Fprintf(w, "%s: already ingested as %s\n", name, result.DocumentID)
			continue
		}
		fmt.Fprintf(w, "%s: ready as %s (%d chunks)\n", name, result.DocumentID, result.NumChunks)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}
