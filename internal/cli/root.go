// Package cli implements searchctl, the operator command line for the
// search engine. Commands work directly on the configured corpus database
// and index data directory, so they must not run while the search service
// holds the same data directory.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/logger"
)

type options struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the searchctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "searchctl",
		Short:         "Manage the search engine corpus and index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}
	root.SetOut(os.Stdout)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/development.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPutCommand(opts),
		newLoadCommand(opts),
		newGetCommand(opts),
		newDeleteCommand(opts),
		newReindexCommand(opts),
		newInspectCommand(opts),
		newSearchCommand(opts),
		newSuggestCommand(opts),
		newAnalyzeCommand(opts),
		newLoadTestCommand(),
	)
	return root
}

func (o *options) config() (*config.Config, error) {
	return config.Load(o.configPath)
}

// engine is the corpus plus, when opened with the index, a recovered
// coordinator subscribed to corpus writes.
type engine struct {
	cfg   *config.Config
	docs  *corpus.Opened
	store *index.Store
	coord *indexer.Coordinator
}

func openEngine(ctx context.Context, o *options, withIndex bool) (*engine, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	docs, err := corpus.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	e := &engine{cfg: cfg, docs: docs}
	if !withIndex {
		return e, nil
	}
	a, err := analyzer.NewForProfile(cfg.Analyzer.Profile, analyzer.Options{
		MaxInputLength: cfg.Analyzer.MaxInputLength,
		StripMarkup:    cfg.Analyzer.StripMarkup,
	})
	if err != nil {
		docs.Close()
		return nil, err
	}
	e.store = index.NewStore()
	e.coord, err = indexer.NewCoordinator(e.store, a, cfg.Indexer, indexer.WithSource(docs))
	if err != nil {
		docs.Close()
		return nil, err
	}
	if _, err := e.coord.Recover(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("recovering index: %w", err)
	}
	docs.Subscribe(e.coord)
	return e, nil
}

// Close checkpoints the index, if open, and closes the corpus.
func (e *engine) Close() error {
	var err error
	if e.coord != nil {
		err = e.coord.Close()
	}
	return errors.Join(err, e.docs.Close())
}
