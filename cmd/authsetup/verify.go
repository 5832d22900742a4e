package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kuitang/gisportal/internal/sessioncapture"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Open the portal with a saved session and check it is signed in",
	Long: `Start a fresh browser context from --state (restoring it from the S3 mirror
when the file is missing and AUTH_MIRROR_BUCKET is set), open the portal root
and check the landing banner and the signed-in marker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		persister, err := newPersister(ctx)
		if err != nil {
			return err
		}
		state, err := persister.Load(ctx)
		if err != nil {
			return err
		}

		// Playwright reads storage state from a path.
		tmp, err := os.CreateTemp("", "authsetup-state-*.json")
		if err != nil {
			return fmt.Errorf("stage session: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(state); err != nil {
			tmp.Close()
			return fmt.Errorf("stage session: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("stage session: %w", err)
		}

		browser, err := sessioncapture.LaunchBrowser()
		if err != nil {
			return err
		}
		defer browser.Close()

		page, err := browser.NewPage(flagBaseURL, filepath.Clean(tmp.Name()))
		if err != nil {
			return err
		}
		defer page.Close()

		if err := sessioncapture.Verify(ctx, nil, page, captureConfig()); err != nil {
			return fmt.Errorf("verify session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session is signed in")
		return nil
	},
}
