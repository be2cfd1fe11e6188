package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-labeler/internal/classstore"
	"github.com/kozaktomas/face-labeler/internal/config"
	"github.com/kozaktomas/face-labeler/internal/database"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/index"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the reference index and show per-label counts",
	Long: `Embed the reference images of every label in the class store (up to --cap
per label) and print how many vectors each label contributes.

Examples:
  face-labeler index --store identified
  face-labeler index --provider pixel --json`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var indexSuggestCmd = &cobra.Command{
	Use:   "suggest <image>",
	Short: "Suggest a label for one image",
	Long: `Build the reference index and print the best matching label for a single
image without moving anything.

Example:
  face-labeler index suggest detected/face_0001.jpg --threshold 0.7`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexSuggest,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexSuggestCmd)

	addMatchFlags(indexCmd)
	indexCmd.Flags().Bool("json", false, "Output as JSON")

	addMatchFlags(indexSuggestCmd)
	indexSuggestCmd.Flags().Bool("json", false, "Output as JSON")
}

// IndexOutput is the JSON output of the index command.
type IndexOutput struct {
	RunID string           `json:"run_id"`
	Build index.BuildStats `json:"build"`
	Index index.Stats      `json:"index"`
}

// SuggestOutput is the JSON output of index suggest.
type SuggestOutput struct {
	Path       string            `json:"path"`
	Threshold  float64           `json:"threshold"`
	Suggestion *index.Suggestion `json:"suggestion"`
	Error      string            `json:"error,omitempty"`
}

// indexDeps holds what both index commands need.
type indexDeps struct {
	cfg      *config.Config
	cache    database.EmbeddingCache
	provider embedding.Provider
	idx      *index.ReferenceIndex
	build    index.BuildStats
}

func (d *indexDeps) Close() {
	if d.cache != nil {
		d.cache.Close()
	}
}

func setupIndex(cmd *cobra.Command, showProgress bool) (*indexDeps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := slog.Default()

	store, err := classstore.Open(cfg.Paths.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open class store: %w", err)
	}

	deps := &indexDeps{cfg: cfg}
	deps.cache, err = openCache(cmd.Context(), &cfg.Database)
	if err != nil {
		return nil, err
	}
	deps.provider, err = newProvider(&cfg.Embedding, deps.cache, log)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.idx, deps.build, err = index.Build(cmd.Context(), store, deps.provider, indexOptions(cfg, showProgress, log), cfg.Embedding.Timeout)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to build reference index: %w", err)
	}
	return deps, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx, cancel := signalContext()
	defer cancel()
	cmd.SetContext(ctx)

	deps, err := setupIndex(cmd, !jsonOutput)
	if err != nil {
		return err
	}
	defer deps.Close()

	stats := deps.idx.Stats()
	if jsonOutput {
		return outputJSON(IndexOutput{RunID: runID, Build: deps.build, Index: stats})
	}

	if stats.Labels == 0 {
		fmt.Println("No labels found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tVECTORS")
	fmt.Fprintln(w, "-----\t-------")
	for _, l := range deps.idx.Labels() {
		fmt.Fprintf(w, "%s\t%d\n", l, stats.PerLabel[l])
	}
	w.Flush()

	fmt.Printf("\nTotal: %d labels, %d vectors (dim %d) in %s\n",
		stats.Labels, stats.Vectors, stats.Dim, deps.build.Duration.Round(time.Millisecond))

	if len(deps.build.Failures) > 0 {
		fmt.Printf("\nFailed to embed %d reference images:\n", len(deps.build.Failures))
		for _, f := range deps.build.Failures {
			fmt.Printf("  %s: %s\n", f.Path, f.Error)
		}
	}
	return nil
}

func runIndexSuggest(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	path := args[0]

	if err := embedding.Probe(path); err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	cmd.SetContext(ctx)

	deps, err := setupIndex(cmd, false)
	if err != nil {
		return err
	}
	defer deps.Close()

	out := SuggestOutput{Path: path, Threshold: deps.cfg.Match.Threshold}
	vec, err := embedding.EmbedWithTimeout(ctx, deps.provider, path, deps.cfg.Embedding.Timeout)
	switch {
	case err != nil:
		out.Error = err.Error()
	default:
		if err := deps.idx.CheckDimension(vec); err != nil {
			return err
		}
		out.Suggestion = deps.idx.Suggest(vec, deps.cfg.Match.Threshold)
	}

	if jsonOutput {
		return outputJSON(out)
	}

	switch {
	case out.Error != "":
		fmt.Printf("%s: no embedding (%s)\n", path, out.Error)
	case out.Suggestion == nil:
		fmt.Printf("%s: no label at or above %.2f\n", path, out.Threshold)
	default:
		fmt.Printf("%s: %s (%.3f)\n", path, out.Suggestion.Label, out.Suggestion.Score)
	}
	return nil
}
