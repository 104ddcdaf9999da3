package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/backupkeeper/internal/app"
	"github.com/semmidev/backupkeeper/internal/infrastructure/logger"
)

var (
	gdriveClientSecret string
	gdriveListenAddr   string
)

var gdriveAuthCmd = &cobra.Command{
	Use:   "gdrive-auth",
	Short: "Obtain a Google Drive refresh token for an upload target",
	Long: `Starts a small local server for the Google OAuth consent flow. Open the
printed URL, approve access, and copy the refresh token into the gdrive
upload target of the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(logger.Options{Level: "info"})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer log.Close()

		svc, err := app.NewGoogleOAuthService(log, gdriveClientSecret)
		if err != nil {
			return err
		}
		if err := svc.Start(gdriveListenAddr); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = svc.Shutdown(ctx)
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser:\n\n%s\n\n", svc.AuthURL())

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		token, err := svc.WaitToken(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "refresh_token: %q\n", token.RefreshToken)
		return nil
	},
}

func init() {
	gdriveAuthCmd.Flags().StringVar(&gdriveClientSecret, "client-secret", "client_secret.json", "path to the OAuth client secret")
	gdriveAuthCmd.Flags().StringVar(&gdriveListenAddr, "listen", "localhost:8080", "address of the callback server")
}
