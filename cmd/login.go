package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/roster"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the device code flow",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	if cfg.API.Token != "" {
		fmt.Println("A static api.token is configured; it is used instead of a signed-in session.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := roster.Login(ctx, baseDir(), cfg, os.Stdout); err != nil {
		fail(exitFailure, fmt.Errorf("sign in failed: %w", err))
	}
	fmt.Println("Signed in.")
	return nil
}
