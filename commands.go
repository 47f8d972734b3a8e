package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-print-bridge/history"
	"github.com/nixxel-company-limited/escpos-print-bridge/receipt"
)

var printTestCmd = &cobra.Command{
	Use:   "print-test",
	Short: "Print a demo receipt on the configured printer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap := store.Snapshot()
		b := newBridge(snap)
		defer b.Close()

		res := b.dispatcher.PrintReceipt(cmd.Context(), demoReceipt(snap.DefaultHeader, snap.DefaultFooter, time.Now()))
		if !res.Success {
			return fmt.Errorf("%s: %s", res.ErrorKind, res.Detail)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "printed on", snap.DeviceName)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := json.MarshalIndent(store.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		if path := store.Path(); path != "" {
			cmd.PrintErrln("# " + path)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent print jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		hist, err := history.Open(store.Snapshot().HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()

		entries, err := hist.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tKIND\tDEVICE\tRESULT\tDURATION\tDETAIL")
		for _, e := range entries {
			result := "ok"
			if !e.Success {
				result = e.ErrorKind
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.StartedAt.Format(time.DateTime), e.Kind, e.Device, result, e.Duration, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of jobs to show")
	rootCmd.AddCommand(printTestCmd, configCmd, historyCmd)
}

// demoReceipt is the sample layout the kiosk UI prints from its test page.
func demoReceipt(header, footer string, now time.Time) receipt.Document {
	return receipt.New(
		receipt.Header(header),
		receipt.Rule(),
		receipt.Body("Printer test"),
		receipt.Body(now.Format(time.DateTime)),
		receipt.Spacer(),
		receipt.Body("ĄČĘ ąčę Ł ł Ż ż"),
		receipt.Rule(),
		receipt.Footer(footer),
	)
}
