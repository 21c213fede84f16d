package main

import (
	"bufio"
	"fmt"
	"strings"

	"nullbr-search-service/internal/bot"
	"nullbr-search-service/internal/model"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation.

End a line with ? to search, answer with a number to pick a title,
"<n>.<type>" to ask for one resource type, or a resource number to
transfer it. An empty line or "exit" quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		d, err := newDispatcher(out)
		if err != nil {
			return err
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || line == "exit" {
				break
			}

			outcome := d.Handle(cmd.Context(), model.InboundMessage{Text: line, UserID: userID, Channel: "cli"})
			if outcome.Intent == bot.IntentIgnored {
				fmt.Fprintln(out, "(未识别的输入，以 ? 结尾进行搜索)")
			}
		}
		return scanner.Err()
	},
}
