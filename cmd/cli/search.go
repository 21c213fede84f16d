package main

import (
	"strings"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/model"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search once and print the listing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDispatcher(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		keyword := strings.Join(args, " ")
		outcome := d.Handle(cmd.Context(), model.InboundMessage{Text: keyword + "?", UserID: userID, Channel: "cli"})
		if outcome.State != bot.StateListed {
			return outcome.Err
		}
		return nil
	},
}
