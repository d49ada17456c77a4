package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bunchee/internal/dashboard"
	"bunchee/internal/log"
)

const defaultServer = "http://localhost:8080"

// errReported marks a failure whose details were already printed.
var errReported = errors.New("failed")

var (
	errorText   = color.New(color.FgRed, color.Bold).SprintFunc()
	successText = color.New(color.FgGreen, color.Bold).SprintFunc()
	dimText     = color.New(color.Faint).SprintFunc()
)

// options are the global flags shared by every command.
type options struct {
	server   string
	token    string
	logLevel string
	logger   *log.Logger
	// now is the clock used for default month and year.
	now func() time.Time
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{now: time.Now}

	root := &cobra.Command{
		Use:   "bunchee-cli",
		Short: "Bunchee ledger from the command line",
		Long: `bunchee-cli talks to a running bunchee server. It renders the
monthly dashboard in the terminal, writes PDF reports and manages the API
token used for both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Diagnostics go to stderr so they never mix with rendered output.
			opts.logger = log.New(log.Config{
				Level:     log.ParseLevel(opts.logLevel),
				Component: log.ComponentCLI,
				Output:    cmd.ErrOrStderr(),
			})
			log.SetDefault(opts.logger)
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("BUNCHEE_URL", ""), "Server URL (env BUNCHEE_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BUNCHEE_TOKEN"), "API token (env BUNCHEE_TOKEN)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level for diagnostics")

	root.AddCommand(
		newDashboardCmd(opts),
		newReportCmd(opts),
		newLoginCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, errorText("error:"), err)
		}
		return 1
	}
	return 0
}

// client returns a dashboard client for the resolved server and token. The
// saved login fills in whatever flags and environment leave empty.
func (o *options) client() *dashboard.Client {
	server, token := o.server, o.token
	if server == "" || token == "" {
		if saved, err := LoadToken(); err == nil {
			if server == "" {
				server = saved.Server
			}
			if token == "" && (o.server == "" || strings.TrimRight(o.server, "/") == saved.Server) {
				token = saved.Token
			}
		}
	}
	if server == "" {
		server = defaultServer
	}
	return dashboard.NewClient(server, token)
}

func (o *options) slog() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger.Logger
}

// filterFlags holds the month selection flags of dashboard and report.
type filterFlags struct {
	kind  string
	month string
	year  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "kind", "expense", "Chart kind: income or expense")
	cmd.Flags().StringVar(&f.month, "month", "", "Month 1-12 (default current month)")
	cmd.Flags().StringVar(&f.year, "year", "", "Year (default current year)")
}

// filter returns the selection. Values are passed to the server as given.
func (f *filterFlags) filter(now time.Time) dashboard.Filter {
	out := dashboard.Filter{Kind: f.kind, Month: f.month, Year: f.year}
	if out.Month == "" {
		out.Month = strconv.Itoa(int(now.Month()))
	}
	if out.Year == "" {
		out.Year = strconv.Itoa(now.Year())
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
