package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/planboard/config"
	"github.com/kilianp07/planboard/core/model"
)

var ptuDate string

var ptuCmd = &cobra.Command{
	Use:   "ptu",
	Short: "Print the PTUs of a day",
	RunE:  runPtu,
}

func init() {
	ptuCmd.Flags().StringVar(&ptuDate, "date", "", "day as YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(ptuCmd)
}

func runPtu(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cal, err := cfg.Planboard.Calendar()
	if err != nil {
		return err
	}
	date := cal.Date(time.Now())
	if ptuDate != "" {
		d, err := time.Parse(time.DateOnly, ptuDate)
		if err != nil {
			return fmt.Errorf("date %q: %w", ptuDate, err)
		}
		date = model.Day(d)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d minutes, %d PTUs of %d minutes\n",
		date.Format(time.DateOnly), cal.MinutesInDay(date), cal.PtusPerDay(date), cal.Duration())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PTU\tSTART\tEND")
	for i := 1; i <= cal.PtusPerDay(date); i++ {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, cal.Start(date, i).Format(time.RFC3339), cal.End(date, i).Format(time.RFC3339))
	}
	return w.Flush()
}
