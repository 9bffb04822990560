package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth"
	"github.com/layer-3/tokenauth/adapters/account"
	"github.com/layer-3/tokenauth/config"
	"github.com/layer-3/tokenauth/core"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:          "tokenauth",
		Short:        "Token authentication and session service",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), purgeCmd(), registerCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withService loads the environment configuration and runs fn against an
// assembled service
func withService(ctx context.Context, fn func(*tokenauth.Service, watermill.LoggerAdapter) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := watermill.NewStdLogger(cfg.LogDebug, false)
	svc, err := tokenauth.NewService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close service", err, nil)
		}
	}()

	return fn(svc, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *tokenauth.Service, _ watermill.LoggerAdapter) error {
				return svc.Run(cmd.Context())
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete tokens that have not been used for a while",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withService(cmd.Context(), func(svc *tokenauth.Service, _ watermill.LoggerAdapter) error {
				n, err := svc.Manager().Purge(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d tokens\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Purge tokens last used before now minus this duration")
	return cmd
}

func registerCmd() *cobra.Command {
	var (
		username string
		password string
		email    string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a password account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *tokenauth.Service, logger watermill.LoggerAdapter) error {
				id, err := svc.RegisterUser(cmd.Context(), username, password, core.Profile{
					account.FieldEmail: email,
				})
				if err != nil {
					return err
				}
				logger.Info("Account registered", watermill.LogFields{"username": username, "identity": id.String()})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
