package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/filmsearch/internal/ingest"
	"github.com/bull/filmsearch/internal/source"
)

var (
	ingestDir     string
	ingestGitHub  string
	ingestReset   bool
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load film articles into the index",
	Long: `Parses markdown film articles and stores each film's record and
per-field embeddings.

This command:
1. Connects to Qdrant and Postgres and verifies both
2. Optionally clears the vector collection (--reset)
3. Lists the markdown pages from a directory or a GitHub repository
4. Splits each page into infobox, lead and sections and embeds every field
5. Upserts the film record and its vectors

Film ids derive from titles, so re-running replaces earlier records.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "directory of markdown film pages")
	ingestCmd.Flags().StringVar(&ingestGitHub, "github", "", "GitHub location owner/repo[/path]")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the vector collection first")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", ingest.DefaultWorkers, "pages processed concurrently")
	ingestCmd.MarkFlagsMutuallyExclusive("dir", "github")
	ingestCmd.MarkFlagsOneRequired("dir", "github")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	fmt.Println("Starting ingest...")
	fmt.Println()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Println("Qdrant and Postgres healthy")

	src, err := openSource(a.Config.GitHub.Token)
	if err != nil {
		return err
	}

	if ingestReset {
		fmt.Println()
		fmt.Println("Clearing existing collection...")
		if err := a.Qdrant.ClearCollection(ctx); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		fmt.Println("Collection cleared")
	}

	fmt.Println()
	fmt.Println("Ingesting film pages...")
	pipeline := ingest.NewPipeline(ingest.Config{
		Source:   src,
		Embedder: a.Embedder,
		Records:  a.Films,
		Vectors:  a.Qdrant,
		Taxonomy: a.Taxonomy,
		Workers:  ingestWorkers,
		Logger:   a.Logger,
	})

	result, err := pipeline.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingest complete!")
	fmt.Printf("  Films: %d/%d\n", result.Ingested, result.TotalPages)
	fmt.Printf("  Fields: %d\n", result.TotalFields)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	if result.Revision != "" {
		fmt.Printf("  Commit: %s\n", result.Revision)
	}

	if len(result.FailedPages) > 0 {
		fmt.Println()
		fmt.Println("Failed pages:")
		for _, failed := range result.FailedPages {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func openSource(token string) (source.Source, error) {
	switch {
	case ingestDir != "":
		return source.NewDirSource(ingestDir)
	case ingestGitHub != "":
		gh, err := source.ParseGitHubLocation(ingestGitHub)
		if err != nil {
			return nil, err
		}
		gh.Token = token
		return source.NewGitHubSource(gh)
	}
	return nil, errors.New("one of --dir or --github is required")
}
