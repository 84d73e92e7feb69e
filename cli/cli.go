// Package cli implements the recall command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	recall "github.com/becomeliminal/recall"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/extract"
	"github.com/becomeliminal/recall/judge"
	"github.com/becomeliminal/recall/reconcile"
	"github.com/becomeliminal/recall/search"
	"github.com/becomeliminal/recall/store/memstore"
	"github.com/becomeliminal/recall/store/sqlitestore"
)

var (
	flagDB               string
	flagModel            string
	flagDisableDeletions bool
)

// NewRootCommand builds the recall command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Personal memory store for conversational assistants",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", "data/recall.db", "sqlite database path (empty for in-memory)")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "anthropic model override")
	root.PersistentFlags().BoolVar(&flagDisableDeletions, "disable-deletions", false, "convert every memory deletion to a no-op")

	root.AddCommand(
		newServeCommand(),
		newAddCommand(),
		newListCommand(),
		newSearchCommand(),
		newRemoveCommand(),
		newSweepCommand(),
	)
	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// newService assembles the full engine behind every command: store,
// vector index, model client, judge, extractor. The vector index is
// warmed from the store before anything runs.
func newService(cmd *cobra.Command) (*recall.Service, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	llm := judge.NewAnthropicLLM(&client, flagModel)

	j, err := judge.New(llm, nil)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder()
	if err != nil {
		return nil, err
	}

	var store core.FactStore
	if flagDB == "" {
		store = memstore.New()
	} else {
		store, err = sqlitestore.New(flagDB)
		if err != nil {
			return nil, err
		}
	}

	svc := recall.New(store, search.NewIndex(embedder), extract.New(llm, nil), j, &recall.Config{
		Reconcile: &reconcile.Config{DisableDeletions: flagDisableDeletions},
	})

	if err := svc.Reindex(cmd.Context()); err != nil {
		svc.Close()
		return nil, fmt.Errorf("warm index: %w", err)
	}
	return svc, nil
}
