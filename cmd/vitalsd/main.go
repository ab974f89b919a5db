// vitalsd samples hardware vitals on a per-metric cadence and logs the
// published snapshots. It is the monitoring daemon around the monitor
// core: one observer attached to every enabled metric, standing in for
// the screens that would otherwise subscribe. With --import it instead
// converts a finished benchmark run's metrics file into series
// statistics and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/bench"
	"codeberg.org/tyrven/vitalsd/internal/config"
	"codeberg.org/tyrven/vitalsd/internal/errors"
	"codeberg.org/tyrven/vitalsd/internal/logger"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/monitor"
	"codeberg.org/tyrven/vitalsd/internal/pid"
	"codeberg.org/tyrven/vitalsd/internal/reader"
	"golang.org/x/sync/errgroup"
)

const (
	// updateBuffer sizes the subscription channel; the publisher drops
	// updates once it fills rather than stall a loop.
	updateBuffer = 64

	digestPeriod = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if cfg.Import != "" {
		if err := importRun(cfg.Import); err != nil {
			logger.Error().Err(err).Str("path", cfg.Import).Msg("Import failed")
			os.Exit(1)
		}

		return
	}

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to claim PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Monitoring failed")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)
	defer ctrl.Shutdown()

	attachments, err := attachEnabled(ctrl, cfg)
	if err != nil {
		return err
	}
	defer closeAll(attachments)

	updates, cancel := pub.Subscribe(updateBuffer)
	defer cancel()

	logger.Info().Int("metrics", len(attachments)).Msg("Monitoring started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return drainUpdates(gctx, updates)
	})
	g.Go(func() error {
		return logDigests(gctx, pub)
	})

	return g.Wait()
}

// attachEnabled starts one sampling loop per enabled metric, cadence
// and retention taken from the per-metric configuration.
func attachEnabled(ctrl *monitor.Controller, cfg *config.Config) ([]*monitor.Attachment, error) {
	var attachments []*monitor.Attachment
	for _, id := range cfg.Enabled() {
		r, ok := reader.For(id)
		if !ok {
			closeAll(attachments)

			return nil, errors.New().WithData(errors.ErrUnknownMetric, struct {
				Metric string
			}{Metric: id.String()})
		}

		mc := cfg.Metric(id)
		att, err := ctrl.Attach(monitor.Spec{
			Reader:       r,
			Period:       mc.Period(),
			ProbeTimeout: mc.ProbeTimeout(),
			MaxPoints:    mc.MaxPoints,
			Window:       mc.HistoryWindow(),
		})
		if err != nil {
			closeAll(attachments)

			return nil, err
		}

		attachments = append(attachments, att)
	}

	return attachments, nil
}

func closeAll(attachments []*monitor.Attachment) {
	for _, att := range attachments {
		if err := att.Close(); err != nil {
			logger.Error().Err(err).Str("metric", att.Metric().String()).Msg("Failed to detach")
		}
	}
}

func drainUpdates(ctx context.Context, updates <-chan monitor.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			logUpdate(update)
		}
	}
}

func logUpdate(update monitor.Update) {
	event := logger.Debug().
		Str("metric", update.Metric.String()).
		Str("state", update.View.State.String()).
		Int("points", len(update.View.Points))

	if update.View.HasLatest {
		switch {
		case update.View.Latest.HasValue:
			event = event.Float64("value", update.View.Latest.Value)
		case update.View.Latest.Label != "":
			event = event.Str("value", update.View.Latest.Label)
		}
	}

	event.Msg("Metric updated")
}

// logDigests summarizes every monitored metric in one structured line
// per period, the log equivalent of a vitals screen.
func logDigests(ctx context.Context, pub *monitor.Publisher) error {
	ticker := time.NewTicker(digestPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logDigest(pub.Snapshot())
		}
	}
}

func logDigest(snap monitor.Snapshot) {
	if len(snap) == 0 {
		return
	}

	event := logger.Info().Int("metrics", len(snap))
	for _, id := range metric.All() {
		view, ok := snap[id]
		if !ok || !view.HasLatest {
			continue
		}

		switch {
		case view.Latest.HasValue:
			event = event.Float64(id.String(), view.Latest.Value)
		case view.Latest.Label != "":
			event = event.Str(id.String(), view.Latest.Label)
		}
	}
	event.Msg("")
}

// importRun converts a finished benchmark run's metrics file into
// bounded series and logs the derived statistics per metric.
func importRun(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New().Wrap(errors.ErrReadImport, err)
	}

	bundle, err := bench.Import(data)
	if err != nil {
		return err
	}

	for _, imported := range bundle.All() {
		if !imported.HasData {
			logger.Info().
				Str("metric", imported.Metric.String()).
				Msg("Run carried no data")

			continue
		}

		logger.Info().
			Str("metric", imported.Metric.String()).
			Int("points", imported.Series.Len()).
			Float64("min", imported.Stats.Min).
			Float64("max", imported.Stats.Max).
			Float64("avg", imported.Stats.Avg).
			Msg("Imported series")
	}

	return nil
}
