// Command intake submits and tracks student mental-health intake forms. It
// runs either as a CLI against the intake API or, with `serve`, as an HTTP
// edge in front of it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smhs/intake/internal/platform/apiclient"
)

func main() {
	a := &app{}
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errorText(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "intake",
		Short:         "Student mental health services intake",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			if cmd.Name() != "serve" {
				a.startRefresh(cmd.Context())
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.AddCommand(
		serveCmd(a),
		validateCmd(a),
		submitCmd(a),
		statusCmd(a),
		detailsCmd(a),
		updateCmd(a),
		signupCmd(a),
		verifyOTPCmd(a),
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		forgotPasswordCmd(a),
		resetPasswordCmd(a),
		dashboardCmd(a),
		submissionsCmd(a),
		processCmd(a),
		draftCmd(a),
	)
	return root
}

// errorText is what the user sees for err: the normalized message for API
// failures, the error text otherwise.
func errorText(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
