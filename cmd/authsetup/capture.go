package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/gisportal/internal/sessioncapture"
)

func init() {
	rootCmd.AddCommand(captureCmd)
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Log in as the seeded admin and save the browser session",
	Long: `Open the portal root, follow the LOGIN control, submit the seeded admin
credentials and, once the signed-in landing page is shown, write the browser
storage state to --state. Nothing is written when any step fails or times out.

	Examples:
	  authsetup capture
	  authsetup capture --base-url http://localhost:9000 --state tests/browser/auth.json
	  AUTH_MIRROR_BUCKET=ci-sessions authsetup capture`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		persister, err := newPersister(ctx)
		if err != nil {
			return err
		}

		browser, err := sessioncapture.LaunchBrowser()
		if err != nil {
			return err
		}
		defer browser.Close()

		page, err := browser.NewPage(flagBaseURL, "")
		if err != nil {
			return err
		}
		defer page.Close()

		if err := sessioncapture.Capture(ctx, nil, page, captureConfig(), persister); err != nil {
			return fmt.Errorf("capture session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved session to %s\n", flagStatePath)
		return nil
	},
}
