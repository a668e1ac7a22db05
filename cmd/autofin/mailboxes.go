package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/gmail"
)

func mailboxesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailboxes",
		Short: "Inspect and unlink mailbox links",
	}

	cmd.AddCommand(listMailboxesCmd())
	cmd.AddCommand(unlinkMailboxCmd())

	return cmd
}

func listMailboxesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List linked mailboxes and their sync state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mailboxes, err := store.ListMailboxes(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list mailboxes: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "USER\tADDRESS\tSTATUS\tCURSOR\tWATCH EXPIRY")
			for _, mb := range mailboxes {
				expiry := "-"
				if !mb.WatchExpiry.IsZero() {
					expiry = mb.WatchExpiry.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					mb.UserID, mb.EmailAddress, mb.Status, mb.HistoryID, expiry)
			}
			return nil
		},
	}
}

func unlinkMailboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <user-id>",
		Short: "Stop a mailbox's push watch and remove its link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mb, err := store.GetMailboxByUser(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to load mailbox: %w", err)
			}
			if mb == nil {
				return fmt.Errorf("no mailbox linked for user %q: %w", userID, common.ErrNotFound)
			}

			// Revoked credentials cannot stop their own watch; it lapses
			// on its own within seven days.
			oauthCfg := &oauth2.Config{
				ClientID:     viper.GetString("google.client_id"),
				ClientSecret: viper.GetString("google.client_secret"),
				Endpoint:     google.Endpoint,
			}
			provider, err := gmail.NewClient(cmd.Context(), oauthCfg, mb, store, slog.Default())
			if err != nil {
				slog.Warn("could not build mail provider, skipping watch stop", "user_id", userID, "error", err)
			} else if err := provider.StopWatch(cmd.Context()); err != nil && !errors.Is(err, common.ErrAuthRevoked) {
				slog.Warn("failed to stop watch", "user_id", userID, "error", err)
			}

			if err := store.DeleteMailbox(cmd.Context(), userID); err != nil {
				return fmt.Errorf("failed to delete mailbox link: %w", err)
			}

			fmt.Printf("Unlinked mailbox %s for user %s\n", mb.EmailAddress, userID)
			return nil
		},
	}
}
