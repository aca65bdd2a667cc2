package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"framelog/collector"
	"framelog/config"
	"framelog/control"
	"framelog/logger"
	"framelog/metrics"
	"framelog/sink"
	"framelog/storage"
	"framelog/transport"
)

// shutdownTimeout bounds how long sessions get to notice their halt flag.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		return 2
	}

	base, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error setting up logger:", err)
		return 2
	}
	defer logger.Flush(base.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log := base.Logger.With(zap.String("run_id", runID))
	log.Info("framelog starting",
		zap.String("device", cfg.Device),
		zap.Int("baudrate", cfg.BaudRate),
		zap.Bool("interactive", cfg.Interactive))

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, m, log); err != nil {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	creds, err := sink.LoadCredentials(cfg.User, cfg.Password, cfg.Credentials)
	if err != nil {
		log.Error("loading credentials", zap.Error(err))
		return 1
	}
	out, err := sink.New(cfg.Destination(), sink.Options{
		Credentials:        creds,
		InsecureSkipVerify: cfg.Insecure,
		Timeout:            cfg.Timeout,
		SSHKeyPath:         cfg.SSHKey,
		KnownHostsPath:     cfg.KnownHosts,
		Log:                log,
		Metrics:            m,
	})
	if err != nil {
		log.Error("setting up sink", zap.Error(err))
		return 1
	}
	defer out.Close()
	log.Info("sink ready", zap.Stringer("sink", out))

	store := storage.NewMetricStore(runID)
	store.Instrument(m)

	prompt := control.NewOutput(os.Stdout)
	reg := collector.NewRegistry(transport.AutoOpener{}, store, log,
		collector.WithHooks(prompt.Hooks()),
		collector.WithMetrics(m),
		collector.WithPollInterval(cfg.PollInterval),
		collector.WithRoundBudget(cfg.Rounds),
	)
	ctl := control.New(reg, store, out, prompt, cfg.Device, cfg.BaudRate, log)
	ctl.Ports = transport.Ports

	if cfg.ReportInterval > 0 {
		go reportEvery(ctx, cfg.ReportInterval, ctl, log)
	}

	code := 0
	if cfg.Interactive {
		if err := ctl.Run(ctx, os.Stdin); err != nil {
			log.Error("reading commands", zap.Error(err))
			code = 1
		}
	} else {
		code = standardMode(ctx, cfg, reg, prompt, log)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}

	// Final report goes out even after a signal.
	reportCtx, cancelReport := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelReport()
	if err := ctl.Report(reportCtx); err != nil {
		prompt.Printf("report: %v\n", err)
		if !errors.Is(err, control.ErrNoData) {
			code = 1
		}
	}

	log.Info("framelog stopped")
	return code
}

// standardMode reads the configured device for cfg.Seconds, until its
// round budget is used up, or until a signal arrives.
func standardMode(ctx context.Context, cfg *config.Config, reg *collector.Registry, prompt *control.Output, log *zap.Logger) int {
	if err := reg.Register(cfg.Device, cfg.BaudRate); err != nil {
		prompt.Printf("register: %v\n", err)
		return 1
	}

	allStopped := make(chan struct{})
	go func() {
		reg.Wait()
		close(allStopped)
	}()

	timer := time.NewTimer(time.Duration(cfg.Seconds) * time.Second)
	defer timer.Stop()

	select {
	case <-timer.C:
		log.Info("run time elapsed", zap.Int("seconds", cfg.Seconds))
	case <-allStopped:
		log.Info("all sessions stopped")
	case <-ctx.Done():
		log.Info("interrupted")
	}
	return 0
}

func reportEvery(ctx context.Context, every time.Duration, ctl *control.Controller, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ctl.Report(ctx); err != nil && !errors.Is(err, control.ErrNoData) {
				log.Warn("periodic report failed", zap.Error(err))
			}
		}
	}
}
