package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-labeler/internal/classstore"
	"github.com/kozaktomas/face-labeler/internal/embedding"
	"github.com/kozaktomas/face-labeler/internal/label"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long:  `Commands for managing the embedding cache (sqlite, PostgreSQL or MariaDB).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [label]",
	Short: "Drop cached embeddings",
	Long: `Drop cached embeddings so the next index build recomputes them.
With a label, only the embeddings of that label's images are dropped.

Examples:
  face-labeler cache clear
  face-labeler cache clear alice --store identified`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached embeddings",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)

	cacheClearCmd.Flags().String("store", "", "Class store root, one directory per label")
	cacheClearCmd.Flags().Bool("json", false, "Output as JSON")
	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// CacheClearOutput is the JSON output of cache clear.
type CacheClearOutput struct {
	Label   string `json:"label,omitempty"`
	Removed int    `json:"removed"`
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("store"); f != nil && f.Changed {
		cfg.Paths.Store = mustGetString(cmd, "store")
	}
	jsonOutput := mustGetBool(cmd, "json")
	ctx := cmd.Context()

	cache, err := openCache(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if cache == nil {
		return errNoCache
	}
	defer cache.Close()

	out := CacheClearOutput{}
	if len(args) == 0 {
		out.Removed, err = cache.Clear(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	} else {
		out.Label, err = label.Normalize(args[0])
		if err != nil {
			return fmt.Errorf("invalid label %q: %w", args[0], err)
		}
		store, err := classstore.Open(cfg.Paths.Store)
		if err != nil {
			return fmt.Errorf("failed to open class store: %w", err)
		}
		images, err := store.Images(out.Label)
		if err != nil {
			return fmt.Errorf("failed to list images of %s: %w", out.Label, err)
		}

		hashes := make([]string, 0, len(images))
		for _, img := range images {
			h, err := embedding.ContentHash(img)
			if err != nil {
				return err
			}
			hashes = append(hashes, h)
		}
		out.Removed, err = cache.Delete(ctx, hashes)
		if err != nil {
			return fmt.Errorf("failed to delete cached embeddings: %w", err)
		}
	}

	if jsonOutput {
		return outputJSON(out)
	}
	if out.Label != "" {
		fmt.Printf("Removed %d cached embeddings for %s\n", out.Removed, out.Label)
	} else {
		fmt.Printf("Removed %d cached embeddings\n", out.Removed)
	}
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cache, err := openCache(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if cache == nil {
		return errNoCache
	}
	defer cache.Close()

	n, err := cache.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count cached embeddings: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{"backend": cfg.Database.Backend, "embeddings": n})
	}
	fmt.Printf("%s cache: %d embeddings\n", cfg.Database.Backend, n)
	return nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
