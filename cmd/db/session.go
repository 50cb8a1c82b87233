package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garrettladley/whoopweb/internal/storage"
	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and clean up stored sessions",
	}
	cmd.AddCommand(sessionShowCmd(), sessionRemoveCmd(), sessionPruneCmd())
	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored session without revealing its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := readStore(cmd)
			if err != nil {
				return err
			}
			backend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = backend.Close()
			}()

			sess, err := backend.Get(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			fmt.Printf("Session:       %s\n", sess.ID)
			fmt.Printf("Created:       %s\n", sess.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:       %s\n", sess.UpdatedAt.Format(time.RFC3339))
			if sess.Token == nil {
				fmt.Println("Token:         none")
				return nil
			}
			fmt.Printf("Access Token:  %s\n", mask(sess.Token.AccessToken))
			if sess.Token.RefreshToken != "" {
				fmt.Printf("Refresh Token: %s\n", mask(sess.Token.RefreshToken))
			}
			fmt.Printf("Scopes:        %s\n", strings.Join(sess.Token.Scopes, " "))
			fmt.Printf("Issued:        %s\n", sess.Token.IssuedAt.Format(time.RFC3339))
			fmt.Printf("Expires:       %s\n", sess.Token.ExpiresAt.Format(time.RFC3339))

			if remaining := time.Until(sess.Token.ExpiresAt); remaining > 0 {
				fmt.Printf("Status:        valid (%s remaining)\n", remaining.Round(time.Second))
			} else {
				fmt.Println("Status:        expired (refreshed on next use)")
			}
			return nil
		},
	}
}

func sessionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a stored session, forcing that browser to log in again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := readStore(cmd)
			if err != nil {
				return err
			}
			backend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = backend.Close()
			}()

			if err := backend.Remove(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to remove session: %w", err)
			}
			fmt.Printf("Removed session %s\n", args[0])
			return nil
		},
	}
}

func sessionPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions and authorization requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := readStore(cmd)
			if err != nil {
				return err
			}
			backend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = backend.Close()
			}()

			pruner, ok := backend.(storage.Pruner)
			if !ok {
				fmt.Printf("Store %q expires entries on its own\n", cfg.Session.Store)
				return nil
			}

			n, err := pruner.Prune(ctx)
			if err != nil {
				return fmt.Errorf("failed to prune: %w", err)
			}
			fmt.Printf("Pruned %d expired rows\n", n)
			return nil
		},
	}
}

// mask keeps enough of a token to tell two apart.
func mask(token string) string {
	const visible = 6
	if len(token) <= visible {
		return strings.Repeat("*", len(token))
	}
	return token[:visible] + strings.Repeat("*", 8)
}
