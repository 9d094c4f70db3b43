package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stickergif/pkg/config"
	"stickergif/pkg/gateway"
	"stickergif/pkg/logger"
	"stickergif/pkg/ui/monitor"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long:  "Runs the Telegram bot pipeline until 'q' is entered on stdin or the process is interrupted. Queued conversions finish before exit.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, closeLog, err := openServeLogger(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer func() { _ = closeLog() }()
		slog.SetDefault(appLogger)
		log := logger.Component(appLogger, "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.Build(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize pipeline", "error", err)
			return
		}

		if serveTUI {
			if err := runWithMonitor(runCtx, stop, svc); err != nil {
				log.Error("Bot runtime failed", "error", err)
			}
			return
		}

		go watchQuit(cmd.InOrStdin(), stop, log)

		log.Info("Bot started, enter q to quit", "workers", cfg.Pipeline.Workers, "cache_dir", cfg.Pipeline.CacheDir)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bot runtime failed", "error", err)
		}
	},
}

var (
	serveTUI     bool
	serveLogFile string
)

func init() {
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "show a live pipeline dashboard instead of log output")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "stickergif.log", "log destination while the dashboard is shown")
	rootCmd.AddCommand(serveCmd)
}

// openServeLogger logs to stderr, or to --log-file while the dashboard owns the terminal.
func openServeLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	if serveTUI {
		return logger.OpenFile(cfg, serveLogFile)
	}
	log, err := logger.New(cfg)
	return log, func() error { return nil }, err
}

// runWithMonitor shows the dashboard while svc runs. Quitting the dashboard
// stops intake and waits for queued conversions to drain.
func runWithMonitor(ctx context.Context, stop context.CancelFunc, svc *gateway.Service) error {
	events, unsubscribe := svc.Events(context.Background())
	defer unsubscribe()

	uiCtx, closeUI := context.WithCancel(ctx)
	defer closeUI()

	runErr := make(chan error, 1)
	go func() {
		err := svc.Run(ctx)
		closeUI()
		runErr <- err
	}()

	uiErr := monitor.Run(uiCtx, events, svc.Stats)
	stop()

	err := <-runErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, uiErr)
}

// watchQuit calls stop once a quit command is read from in.
func watchQuit(in io.Reader, stop context.CancelFunc, log *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if isQuitCommand(scanner.Text()) {
			log.Info("Quit requested, draining queued conversions")
			stop()
			return
		}
	}
}

func isQuitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "q", "quit", "exit", ":q":
		return true
	default:
		return false
	}
}
