package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/hyperjump/querylinker/internal/auth"
	"github.com/hyperjump/querylinker/internal/cli"
	"github.com/hyperjump/querylinker/internal/embedding"
	"github.com/hyperjump/querylinker/internal/mail"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/internal/vector"
	"github.com/spf13/cobra"
)

func newEmbedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text...>",
		Short: "Embed text with the configured provider and print vector stats",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := context.Background()
			embedder, err := embedding.NewEmbedder(ctx, cfg.Embedding, logger.Named("embedding"))
			if err != nil {
				return err
			}
			defer embedder.Close()

			vectors, err := embedder.Embed(ctx, args)
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			cmd.Printf("provider: %s\n", embedder.Name())
			for i, v := range vectors {
				cmd.Printf("[%d] dims=%d norm=%.4f  %q\n", i, len(v), vector.L2Norm(v), args[i])
			}
			if len(vectors) > 1 {
				cmd.Printf("cosine([0],[1]) = %.4f\n", vector.CosineSimilarity(vectors[0], vectors[1]))
			}
			return nil
		},
	}
}

func newEmailCmd(opts *globalOptions) *cobra.Command {
	email := &cobra.Command{
		Use:   "email",
		Short: "Email delivery tools",
	}
	var serverURL, token string
	test := &cobra.Command{
		Use:   "test <to>",
		Short: "Send a test email",
		Long: `Sends a test email with the configured transport. With --server the running
server sends it instead, which also checks the server's mail settings. The
server only accepts signed-in users, so pass a session token with --token or
QUERYLINKER_TOKEN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result *models.EmailResult
			if serverURL != "" {
				r, err := cli.NewClient(serverURL).WithToken(token).SendTestEmail(context.Background(), args[0])
				if err != nil {
					return err
				}
				result = r
			} else {
				cfg, logger, err := opts.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				d := mail.NewDispatcher(cfg.Mail, logger.Named("mail"))
				defer d.Close()
				r := d.SendEmail(context.Background(), args[0],
					"QueryLinker test email",
					"<p>This is a test email from <strong>QueryLinker</strong>. Mail delivery is working.</p>",
					"")
				result = &r
			}
			return printEmailResult(cmd, result)
		},
	}
	test.Flags().StringVar(&serverURL, "server", "", "send through a running server instead of locally")
	test.Flags().StringVar(&token, "token", os.Getenv("QUERYLINKER_TOKEN"), "session token for --server")
	email.AddCommand(test)
	return email
}

func printEmailResult(cmd *cobra.Command, result *models.EmailResult) error {
	if !result.Success {
		return fmt.Errorf("delivery via %s failed: %s", result.Provider, result.Error)
	}
	cmd.Printf("sent via %s in %dms\n", result.Provider, result.DeliveryTimeMs)
	if result.MessageID != "" {
		cmd.Printf("message id: %s\n", result.MessageID)
	}
	if result.PreviewURL != "" {
		cmd.Printf("preview: %s\n", result.PreviewURL)
	}
	return nil
}

func newAuthCmd(opts *globalOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Google sign-in tools",
	}
	var serverURL string
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print a Google sign-in URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var authURL, state string
			if serverURL != "" {
				u, s, err := cli.NewClient(serverURL).GoogleAuthURL(context.Background())
				if err != nil {
					return err
				}
				authURL, state = u, s
			} else {
				cfg, logger, err := opts.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				state = uuid.NewString()
				u, err := auth.NewGoogleAuth(cfg.Auth.Google, logger.Named("auth")).GenerateAuthURL(state)
				if err != nil {
					return fmt.Errorf("%w: set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI", err)
				}
				authURL = u
			}
			cmd.Println(authURL)
			cmd.Printf("state: %s\n", state)
			return nil
		},
	}
	urlCmd.Flags().StringVar(&serverURL, "server", "", "ask a running server instead of using local config")
	authCmd.AddCommand(urlCmd)
	return authCmd
}
