// Command featurelens explores which learned features of a language model
// explain a chosen word of a sentence.
//
// Subcommands:
//
//	serve      run the HTTP API
//	tokenize   split a sentence into tokens
//	explain    look up the explanations of one token
//	embed-url  print the dashboard URL of a feature
//	migrate    manage the lookup log schema
//	history    list recent lookups
//	version    print build information
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/featurelens/internal/config"
	"github.com/heartmarshall/featurelens/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "featurelens:", errorMessage(err))
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "featurelens",
		Short:         "Explore feature explanations for the words of a sentence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"YAML config file (default $CONFIG_PATH or ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newTokenizeCmd(),
		newExplainCmd(opts),
		newEmbedURLCmd(),
		newMigrateCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFrom(o.configPath)
	}
	return config.Load()
}

// errorMessage prefers the end-user wording for lookup and selection failures.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrAuth),
		errors.Is(err, domain.ErrService),
		errors.Is(err, domain.ErrInvalidSelection):
		return domain.UserMessage(err)
	default:
		return err.Error()
	}
}
