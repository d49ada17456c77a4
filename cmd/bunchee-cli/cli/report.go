package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bunchee/internal/dashboard"
	"bunchee/internal/dashboard/pdf"
)

func newReportCmd(opts *options) *cobra.Command {
	var (
		flags filterFlags
		out   string
		font  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the monthly dashboard as a PDF",
		Long: `Load one month's chart and totals and write them to a one-page PDF.
Thai labels need a TrueType font with Thai glyphs (--font); without one the
report uses Helvetica and an English title.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := flags.filter(opts.now())
			if out == "" {
				out = fmt.Sprintf("bunchee-%s-%s.pdf", f.Year, f.Month)
			}
			report := pdf.New(f, pdf.Options{FontPath: font})
			if err := loadReport(cmd.Context(), opts, report); err != nil {
				return err
			}

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := report.Write(file); err != nil {
				file.Close()
				return fmt.Errorf("write report: %w", err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", successText("✓"), out)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default bunchee-YEAR-MONTH.pdf)")
	cmd.Flags().StringVar(&font, "font", os.Getenv("BUNCHEE_PDF_FONT"), "TrueType font for Thai text (env BUNCHEE_PDF_FONT)")
	return cmd
}

// loadReport runs one refresh cycle into report. Any load failure aborts,
// since a partial PDF is not useful.
func loadReport(ctx context.Context, opts *options, report *pdf.Report) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r := dashboard.New(opts.client(), report, dashboard.Config{
		TitleFormat: report.TitleFormat(),
		OnError: func(ctx context.Context, err error) {
			opts.slog().DebugContext(ctx, "Report load failed", "error", err)
		},
		Logger: opts.slog(),
	})
	defer r.Close()
	if err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("load report data: %s", describe(err))
	}
	return nil
}
