package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-labeler/internal/classstore"
	"github.com/kozaktomas/face-labeler/internal/config"
	"github.com/kozaktomas/face-labeler/internal/constants"
	"github.com/kozaktomas/face-labeler/internal/decider"
	"github.com/kozaktomas/face-labeler/internal/index"
	"github.com/kozaktomas/face-labeler/internal/tui"
	"github.com/kozaktomas/face-labeler/internal/web"
	"github.com/kozaktomas/face-labeler/internal/web/handlers"
	"github.com/kozaktomas/face-labeler/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label the unlabeled pool",
	Long: `Walk the unlabeled pool one image at a time, suggest the closest known
identity and move each confirmed image into its label directory.

Deciders:
  tui     interactive terminal prompt (default on a terminal)
  http    browser UI served on --listen
  script  decisions read from a YAML file (--decisions)
  auto    accept suggestions, skip the rest (default without a terminal)

Examples:
  face-labeler label --pool detected --store identified
  face-labeler label --auto-accept --threshold 0.8
  face-labeler label --provider pixel --decider script --decisions decisions.yaml --json`,
	Args: cobra.NoArgs,
	RunE: runLabel,
}

func init() {
	rootCmd.AddCommand(labelCmd)
	addMatchFlags(labelCmd)

	labelCmd.Flags().Bool("auto-accept", false, "Commit suggestions at or above the threshold without asking")
	labelCmd.Flags().String("decider", "", "Decider: tui, http, script, auto (default depends on the terminal)")
	labelCmd.Flags().String("decisions", "", "YAML decisions file for the script decider")
	labelCmd.Flags().String("listen", "", "Address of the http decider (default 127.0.0.1:8085)")
	labelCmd.Flags().Int("size", 0, "Max preview size in pixels for the http decider")
	labelCmd.Flags().Bool("verify", true, "Check that each image decodes before embedding it")
	labelCmd.Flags().Bool("json", false, "Output the summary as JSON")
}

// addMatchFlags registers the flags shared by label and index.
func addMatchFlags(c *cobra.Command) {
	c.Flags().String("pool", "", "Directory of unlabeled face crops")
	c.Flags().String("store", "", "Class store root, one directory per label")
	c.Flags().Float64("threshold", constants.DefaultThreshold, "Minimum cosine similarity for a suggestion, in [-1, 1]")
	c.Flags().Int("cap", constants.DefaultCapPerLabel, "Reference images loaded per label")
	c.Flags().String("provider", "", "Embedding provider: http, pixel")
	c.Flags().String("model", "", "Embedding model name reported to the server")
	c.Flags().String("growth", "", "Reference growth policy: unbounded, capped")
	c.Flags().String("search", "", "Search backend: linear, hnsw")
	c.Flags().Duration("timeout", 0, "Timeout for one embedding")
	c.Flags().Int("concurrency", 0, "Embedding workers used while building the index")
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("pool") {
		cfg.Paths.Pool = mustGetString(cmd, "pool")
	}
	if changed("store") {
		cfg.Paths.Store = mustGetString(cmd, "store")
	}
	if changed("threshold") {
		cfg.Match.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if changed("cap") {
		cfg.Match.CapPerLabel = mustGetInt(cmd, "cap")
	}
	if changed("provider") {
		cfg.Embedding.Provider = mustGetString(cmd, "provider")
	}
	if changed("model") {
		cfg.Embedding.Model = mustGetString(cmd, "model")
	}
	if changed("growth") {
		cfg.Match.Growth = mustGetString(cmd, "growth")
	}
	if changed("search") {
		cfg.Match.Search = mustGetString(cmd, "search")
	}
	if changed("timeout") {
		cfg.Embedding.Timeout = mustGetDuration(cmd, "timeout")
	}
	if changed("concurrency") {
		cfg.Embedding.Concurrency = mustGetInt(cmd, "concurrency")
	}
	if changed("auto-accept") {
		cfg.Match.AutoAccept = mustGetBool(cmd, "auto-accept")
	}
	if changed("decider") {
		cfg.Decider.Kind = mustGetString(cmd, "decider")
	}
	if changed("decisions") {
		cfg.Decider.DecisionsFile = mustGetString(cmd, "decisions")
	}
	if changed("listen") {
		cfg.Decider.Listen = mustGetString(cmd, "listen")
	}
	if changed("size") {
		cfg.Decider.PreviewSize = mustGetInt(cmd, "size")
	}
}

// observer receives workflow transitions.
type observer interface {
	Observe(ev workflow.Event)
}

// labelDecider is the decider chosen for a run plus its teardown.
type labelDecider struct {
	kind     string
	decider  workflow.Decider
	observer observer
	stop     func(summary workflow.Summary)
}

func runLabel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if cfg.Decider.Kind == "" {
		cfg.Decider.Kind = defaultDecider()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	jsonOutput := mustGetBool(cmd, "json")
	log := slog.Default()

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := classstore.ScanPool(cfg.Paths.Pool)
	if err != nil {
		return fmt.Errorf("failed to scan unlabeled pool: %w", err)
	}
	store, err := classstore.Open(cfg.Paths.Store)
	if err != nil {
		return fmt.Errorf("failed to open class store: %w", err)
	}

	cache, err := openCache(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	provider, err := newProvider(&cfg.Embedding, cache, log)
	if err != nil {
		return err
	}

	var idx *index.ReferenceIndex
	if len(pool) == 0 {
		// nothing to label, skip embedding the references
		idx, err = index.New(indexOptions(cfg, false, log))
	} else {
		idx, _, err = index.Build(ctx, store, provider, indexOptions(cfg, !jsonOutput, log), cfg.Embedding.Timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to build reference index: %w", err)
	}

	d, err := newLabelDecider(cfg, log)
	if err != nil {
		return err
	}

	wf, err := workflow.New(workflow.Config{
		Pool:         pool,
		Provider:     provider,
		Index:        idx,
		Store:        store,
		Decider:      d.decider,
		Threshold:    cfg.Match.Threshold,
		AutoAccept:   cfg.Match.AutoAccept,
		EmbedTimeout: cfg.Embedding.Timeout,
		VerifyDecode: mustGetBool(cmd, "verify"),
		Logger:       log,
		OnEvent: func(ev workflow.Event) {
			if d.observer != nil {
				d.observer.Observe(ev)
			}
			if ev.Message != "" && !jsonOutput && d.kind != constants.DeciderTUI {
				fmt.Println(ev.Message)
			}
		},
	})
	if err != nil {
		return err
	}

	summary, runErr := wf.Run(ctx)
	if d.stop != nil {
		d.stop(summary)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if err := outputSummary(summary, idx.Stats(), jsonOutput); err != nil {
		return err
	}
	return runErr
}

// defaultDecider picks tui on an interactive terminal and auto otherwise.
func defaultDecider() string {
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return constants.DeciderTUI
	}
	return constants.DeciderAuto
}

func newLabelDecider(cfg *config.Config, log *slog.Logger) (*labelDecider, error) {
	switch cfg.Decider.Kind {
	case constants.DeciderTUI:
		t := tui.New()
		return &labelDecider{kind: constants.DeciderTUI, decider: t, observer: t}, nil

	case constants.DeciderScript:
		s, err := decider.LoadScript(cfg.Decider.DecisionsFile)
		if err != nil {
			return nil, err
		}
		return &labelDecider{kind: constants.DeciderScript, decider: s}, nil

	case constants.DeciderAuto:
		return &labelDecider{kind: constants.DeciderAuto, decider: decider.Auto{}}, nil

	case constants.DeciderHTTP:
		session := handlers.NewSession(log)
		server := web.NewServer(cfg.Decider.Listen, handlers.NewHandler(session, cfg.Decider.PreviewSize, log), log)
		ln, err := server.Listen()
		if err != nil {
			return nil, err
		}
		go func() {
			if err := server.Serve(ln); err != nil {
				log.Error("web decider stopped", "error", err)
			}
		}()
		fmt.Fprintf(os.Stderr, "Open http://%s to label images\n", ln.Addr().String())

		stop := func(summary workflow.Summary) {
			session.Finish(summary)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("web decider shutdown", "error", err)
			}
		}
		return &labelDecider{kind: constants.DeciderHTTP, decider: session, observer: session, stop: stop}, nil

	default:
		return nil, fmt.Errorf("unknown decider %q", cfg.Decider.Kind)
	}
}

// LabelOutput is the JSON summary of a label run.
type LabelOutput struct {
	RunID string `json:"run_id"`
	workflow.Summary
	Index index.Stats `json:"index"`
}

func outputSummary(summary workflow.Summary, stats index.Stats, jsonOutput bool) error {
	if jsonOutput {
		return outputJSON(LabelOutput{RunID: runID, Summary: summary, Index: stats})
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total:\t%d\n", summary.Total)
	fmt.Fprintf(w, "Processed:\t%d\n", summary.Processed)
	fmt.Fprintf(w, "Auto-accepted:\t%d\n", summary.AutoAccepted)
	fmt.Fprintf(w, "Manually labeled:\t%d\n", summary.ManuallyLabeled)
	fmt.Fprintf(w, "Skipped:\t%d\n", summary.Skipped)
	fmt.Fprintf(w, "Embedding failures:\t%d\n", summary.EmbeddingFailures)
	fmt.Fprintf(w, "Duration:\t%s\n", summary.Duration.Round(time.Millisecond))
	w.Flush()

	if summary.Quit {
		fmt.Printf("\nStopped early: %d of %d images not visited.\n", summary.Total-summary.Processed, summary.Total)
	}

	if len(summary.Skips) > 0 {
		fmt.Println("\nSkipped:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, s := range summary.Skips {
			fmt.Fprintf(w, "  %s\t%s\n", s.Path, s.Reason)
		}
		w.Flush()
	}
	return nil
}
