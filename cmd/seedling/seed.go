package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seedling/internal/bootstrap"
	"seedling/internal/config"
	"seedling/internal/knowledge"
	"seedling/internal/provider"
	"seedling/internal/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed [glossary.pdf ...]",
	Short: "Seed the knowledge base with foundational vocabulary",
	Long: `Seed the knowledge base with the embedded foundational vocabulary,
plus term-definition glossaries extracted from any PDF files given as
arguments. Seeding is idempotent; re-running refreshes the same records.

Run this while the server is stopped: it opens the data directory directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		local := provider.NewLocal(cfg.Local.BaseURL, cfg.Local.ChatModel, cfg.Local.EmbedModel)
		if !local.IsRunning(cmd.Context()) {
			return fmt.Errorf("local inference engine not reachable at %s; seeding needs embeddings", cfg.Local.BaseURL)
		}
		index := knowledge.NewSQLiteIndex(store.DB(), provider.NewEmbedder(local))
		base := knowledge.NewBase(store, index, nil)

		n, err := bootstrap.SeedVocabulary(cmd.Context(), base, nil)
		if err != nil {
			return err
		}
		printSuccess("Seeded %d vocabulary concepts", n)

		for _, path := range args {
			n, err := bootstrap.SeedPDF(cmd.Context(), base, path, nil)
			if err != nil {
				printError("seeding %s: %v", path, err)
				continue
			}
			printSuccess("Seeded %d concepts from %s", n, path)
		}
		return nil
	},
}
