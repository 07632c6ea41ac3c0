package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/planboard/core/model"
)

var (
	cleanupBefore string
	cleanupTypes  []string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete documents created before a date",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupBefore, "before", "", "cutoff date as YYYY-MM-DD")
	cleanupCmd.Flags().StringSliceVar(&cleanupTypes, "type", nil, "document types to delete (default: all)")
	_ = cleanupCmd.MarkFlagRequired("before")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	types := model.DocumentTypes
	if len(cleanupTypes) > 0 {
		types = nil
		for _, s := range cleanupTypes {
			t, err := model.ParseDocumentType(s)
			if err != nil {
				return err
			}
			types = append(types, t)
		}
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	before, err := time.ParseInLocation(time.DateOnly, cleanupBefore, svc.Calendar.Location())
	if err != nil {
		return fmt.Errorf("before %q: %w", cleanupBefore, err)
	}
	for _, t := range types {
		n, err := svc.Ledger.Cleanup(ctx, t, before)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d removed\n", t, n)
	}
	return nil
}
