package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bunchee/internal/dashboard"
	"bunchee/internal/dashboard/term"
)

func newDashboardCmd(opts *options) *cobra.Command {
	var (
		flags       filterFlags
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the monthly chart and totals",
		Long: `Load the chart data and monthly totals for one month and print them.

With --interactive, each line read from stdin changes the selection and
refreshes the view. A line holds "month [year [kind]]"; missing fields keep
their values. An empty line refreshes, "q" quits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := term.New(flags.filter(opts.now()))
			return runDashboard(cmd.Context(), opts, view, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), interactive)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Read new selections from stdin")
	return cmd
}

// runDashboard refreshes view once, then once per input line when
// interactive. Load failures are printed as they happen.
func runDashboard(ctx context.Context, opts *options, view *term.View, in io.Reader, out, errOut io.Writer, interactive bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	failed := false
	r := dashboard.New(opts.client(), view, dashboard.Config{
		OnError: func(ctx context.Context, err error) {
			failed = true
			fmt.Fprintln(errOut, errorText("error:"), describe(err))
		},
		Logger: opts.slog(),
	})
	defer r.Close()

	refresh := func() error {
		_ = r.Refresh(ctx)
		return view.Render(out)
	}

	if err := refresh(); err != nil {
		return err
	}
	if !interactive {
		if failed {
			return errReported
		}
		return nil
	}

	pterm.Info.WithWriter(errOut).Println(`Enter "month [year [kind]]", empty line to reload, q to quit`)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "q" || line == "quit" {
			return nil
		}
		if line != "" {
			view.ParseFilter(line)
		}
		if err := refresh(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// describe turns client errors into one-line messages.
func describe(err error) string {
	var apiErr *dashboard.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return "not signed in or token expired (run: bunchee-cli login)"
	}
	var renderErr *dashboard.RenderError
	if errors.As(err, &renderErr) {
		return "cannot draw chart: " + renderErr.Err.Error()
	}
	return err.Error()
}
