package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/archive"
)

func transcriptCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Create or read ticket transcripts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <ticket-id>",
		Short: "Archive a transcript without changing the ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, nil, func(ctx context.Context, a *app.App) error {
				manifest, err := a.Tickets.Transcript(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(manifest)
			})
		},
	})

	var identityFile string
	cat := &cobra.Command{
		Use:   "cat <manifest.json>",
		Short: "Verify a stored transcript and print its HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var identities []age.Identity
			if identityFile != "" {
				f, err := os.Open(identityFile)
				if err != nil {
					return err
				}
				defer f.Close()
				if identities, err = age.ParseIdentities(f); err != nil {
					return fmt.Errorf("parse identity file: %w", err)
				}
			}
			html, err := archive.ReadTranscript(args[0], identities...)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(html)
			return err
		},
	}
	cat.Flags().StringVarP(&identityFile, "identity", "i", "", "age identity file for encrypted transcripts")
	cmd.AddCommand(cat)
	return cmd
}
