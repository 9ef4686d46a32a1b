package cli

import (
	"fmt"

	"github.com/raphaelgruber/sitesnap/internal/report"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
	"github.com/spf13/cobra"
)

var statusWrite bool

var statusCmd = &cobra.Command{
	Use:   "status REPORT",
	Short: "Refresh and summarize a previous report",
	Long: `Reload a report, fetch the current status of every snapshot that was not
final, and print a summary with the failed projects.

Examples:
  sitesnap status snapshot_report.csv
  sitesnap status snapshot_report.csv --write   # also update the file`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWrite, "write", "w", false, "rewrite the report with refreshed statuses")
	statusCmd.Flags().String("not-found-policy", "", "when a snapshot disappears: retain or fail (default retain)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	records, err := report.Records(path)
	if err != nil {
		return err
	}

	policy, err := snapshot.ParseNotFoundPolicy(cfg.NotFoundPolicy)
	if err != nil {
		return err
	}

	api, err := newSiteClient()
	if err != nil {
		return err
	}

	s := snapshot.New(api, snapshot.Options{NotFound: policy, Logger: logger})
	s.Adopt(records...)
	err = s.Refresh(ctx)
	logAPIStats(logger)
	if err != nil {
		return err
	}

	refreshed := s.Records()
	batch := ""
	if len(refreshed) > 0 {
		batch = refreshed[0].BatchLabel
	}

	sum := summary{Title: "Report " + path, Batch: batch, Records: refreshed}
	if statusWrite {
		if err := report.Write(path, s.Report()); err != nil {
			return err
		}
		sum.ReportPath = path
	}

	fmt.Fprint(cmd.OutOrStdout(), sum.render(defaultTheme))
	return nil
}
