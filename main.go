package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/escpos-print-bridge/backend"
	"github.com/nixxel-company-limited/escpos-print-bridge/channel"
	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/dispatch"
	"github.com/nixxel-company-limited/escpos-print-bridge/history"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
)

var (
	v          = viper.New()
	configPath string
	logFormat  string
	store      *config.Store
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "printbridge",
	Short:         "Print bridge between a kiosk web UI and ESC/POS receipt printers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		s, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		store = s
		logger = logging.Init(s.Snapshot().DebugMode, logging.ParseFormat(logFormat))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/printbridge/config.toml)")
	flags.String("device", "", "printer device name, overrides "+config.KeyDeviceName)
	flags.Bool("debug", false, "enable debug logging, overrides "+config.KeyDebugMode)
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")

	_ = v.BindPFlag(config.KeyDeviceName, flags.Lookup("device"))
	_ = v.BindPFlag(config.KeyDebugMode, flags.Lookup("debug"))
}

// bridge holds everything a print request needs.
type bridge struct {
	dispatcher *dispatch.Dispatcher
	history    *history.Store
}

func (b *bridge) Close() {
	if b.history != nil {
		if err := b.history.Close(); err != nil {
			logger.Warn("closing job history", "error", err)
		}
	}
}

// newBridge wires the dispatcher to the configured backends. A job history
// that cannot be opened is logged and skipped.
func newBridge(snap config.Snapshot) *bridge {
	b := &bridge{}
	opts := []dispatch.Option{dispatch.WithLogger(logger)}

	hist, err := history.Open(snap.HistoryPath)
	if err != nil {
		logger.Warn("job history disabled", "error", err)
	} else {
		b.history = hist
		opts = append(opts, dispatch.WithRecorder(hist))
	}

	receipts := backend.NewEscpos(channel.NewDevice(logger), channel.NewKeyedMutex(), logger)
	pages := backend.NewPageSpool(backend.NewChromeRenderer(snap.ChromePath), backend.NewLPSpooler(), logger)
	b.dispatcher = dispatch.New(store, receipts, pages, opts...)
	return b
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
