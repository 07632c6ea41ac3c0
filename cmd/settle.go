package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/planboard/app"
	"github.com/kilianp07/planboard/core/model"
	jobsettlement "github.com/kilianp07/planboard/jobs/settlement"
)

var settleMonth string

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Settle the flex orders of a month and archive it when complete",
	RunE:  runSettle,
}

func init() {
	settleCmd.Flags().StringVar(&settleMonth, "month", "", "month to settle as YYYY-MM (default: previous month)")
	rootCmd.AddCommand(settleCmd)
}

func runSettle(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	year, month := jobsettlement.PreviousMonth(time.Now())
	if settleMonth != "" {
		var err error
		year, month, err = jobsettlement.ParseMonth(settleMonth)
		if err != nil {
			return err
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.EqualFold(cfg.MeterData.Type, "static") {
		return fmt.Errorf("%w: settle needs metered data, meter_data.type is static", model.ErrConfiguration)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeService(svc)

	res, err := svc.SettleMonth(ctx, year, month)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%04d-%02d: %d settled, %d already settled, %d failed\n",
		year, month, len(res.Report.Settled), len(res.Report.Skipped), len(res.Report.Failed))
	for _, f := range res.Report.Failed {
		fmt.Fprintf(out, "  %s: %v\n", f.Order, f.Err)
	}
	if res.Complete {
		fmt.Fprintf(out, "complete, %d documents archived\n", res.Archived)
		return nil
	}
	fmt.Fprintf(out, "incomplete, %d orders unsettled\n", len(res.Missing))
	return nil
}
