package main

import (
	"fmt"
	"io"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/config"
	"nullbr-search-service/internal/host"
	"nullbr-search-service/internal/repository"
	"nullbr-search-service/internal/service"
	"nullbr-search-service/pkg/httpclient"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	userID  string
	verbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "cli", "user id the conversation is kept under")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show service logs")
}

var rootCmd = &cobra.Command{
	Use:          "nullbr-cli",
	Short:        "Search nullbr and resolve download resources from the terminal",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

// newDispatcher wires the dispatcher the same way the server does, with
// memory sessions and replies printed to out
func newDispatcher(out io.Writer) (*bot.Dispatcher, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := httpclient.DefaultOptions()
	opts.ProxyURL = cfg.Proxy
	opts.PreferredTimeout = cfg.Timeout
	client, err := httpclient.NewClient(opts)
	if err != nil {
		return nil, err
	}

	nullbr := service.NewNullbrService(client, cfg.BaseURL, cfg.AppID, cfg.APIKey)
	resolver := service.NewResolver(nullbr, cfg.EnabledTypes)

	var botOpts []bot.Option
	if cfg.TransferEnabled() {
		directOpts := httpclient.DefaultOptions()
		directOpts.DirectOnly = true
		direct, err := httpclient.NewClient(directOpts)
		if err != nil {
			return nil, err
		}
		botOpts = append(botOpts, bot.WithTransferer(service.NewCMSService(direct, cfg.CMSURL, cfg.CMSUsername, cfg.CMSPassword)))
	}

	sessions := repository.NewMemorySessionStore(cfg.SessionTTL)
	return bot.NewDispatcher(nullbr, resolver, cfg.Priority, sessions, host.NewConsoleHost(out), botOpts...), nil
}
