package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DefensEye/cmmc12/cmd/defenseye/server"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask the CMMC assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			responder, closeResponder, err := server.NewResponder(cmd.Context(), cfg.Chatbot)
			if err != nil {
				return err
			}
			defer closeResponder()

			answer, err := responder.Respond(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}
