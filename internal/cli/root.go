package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/index"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/score"
	"github.com/engramdb/engram/internal/store"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Long-term memory store for AI agents",
	Long: "Engram stores agent memories as embedded, deduplicated records with " +
		"supersession chains, hybrid relevance scoring, and decay-based forgetting.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to engram.yaml")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the database file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(statsCmd)
}

func loadConfig() (*config.Config, error) {
	overrides := map[string]any{}
	if flagDB != "" {
		overrides["database.path"] = flagDB
	}
	return config.Load(flagConfig, overrides)
}

// openEngine builds a ready-to-use engine from the resolved config.
// Callers must Stop the engine and Close the DB.
func openEngine(cfg *config.Config) (*engine.Engine, *store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: reasoning client not configured (%v), using heuristics\n", err)
	}

	eng := engine.New(db, llmClient, pickEmbedder(cfg))
	eng.GraphPath = dbPath + ".graph"
	eng.Weights = score.Preset(cfg.Scoring.Preset)
	if cfg.Scoring.ModelSize != "" {
		eng.ModelSize = score.ModelSize(cfg.Scoring.ModelSize)
	}
	if cfg.Index.StrategyOverride != "" {
		eng.Index.SetStrategyOverride(index.Strategy(cfg.Index.StrategyOverride))
	}
	if err := eng.LoadIndex(); err != nil {
		db.Close()
		return nil, nil, err
	}
	eng.Start()
	return eng, db, nil
}

// withEngine opens the engine, runs fn, and tears everything down.
func withEngine(fn func(*engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer eng.Stop()
	return fn(eng)
}

// pickEmbedder probes the configured embedding service and degrades to
// the deterministic hash embedder when it is unreachable.
func pickEmbedder(cfg *config.Config) engine.Embedder {
	if cfg.Embedding.Provider == "ollama" &&
		engine.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", cfg.Embedding.Model)
		return engine.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	fmt.Fprintln(os.Stderr, "  embedder: hash (fallback)")
	return engine.NewHashEmbedder(cfg.Embedding.Dimensions)
}
