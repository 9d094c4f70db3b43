package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
	"stickergif/pkg/channel"
	"stickergif/pkg/channel/telegram"
	"stickergif/pkg/config"
	"stickergif/pkg/dispatch"
	"stickergif/pkg/intake"
	"stickergif/pkg/job"
	"stickergif/pkg/render"
	"stickergif/pkg/retry"
)

// Build wires the Telegram adapter, cache, renderer, converter, dispatcher and
// intake controller from cfg. Handlers are registered before it returns.
func Build(cfg *config.Config, log *slog.Logger) (*Service, error) {
	adapter, err := telegram.NewAdapter(cfg.Telegram, log)
	if err != nil {
		return nil, err
	}

	return buildPipeline(cfg, adapter, adapter, adapter, log)
}

func buildPipeline(cfg *config.Config, adapter channel.Adapter, fetcher channel.Fetcher, delivery channel.Delivery, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := cache.New(cfg.Pipeline.CacheDir)
	if err != nil {
		return nil, err
	}

	overflow, err := dispatch.ParseOverflow(cfg.Pipeline.Overflow)
	if err != nil {
		return nil, fmt.Errorf("pipeline.overflow: %w", err)
	}

	renderer, err := render.New(render.Options{
		FontPath:   cfg.Render.FontPath,
		FontSize:   cfg.Render.FontSize,
		CanvasSize: cfg.Render.CanvasSize,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize symbol renderer: %w", err)
	}

	converter := NewConverter(cfg.Converter, log)

	hub := bus.NewHub()
	dispatcher := dispatch.New(cfg.Pipeline.Workers, log, dispatch.WithCapacity(cfg.Pipeline.QueueCapacity, overflow))

	controller := intake.New(store, dispatcher, fetcher, delivery, intake.Options{
		Converter: converter,
		Animated: job.AnimatedOptions{
			Timeout:        cfg.Converter.Timeout(),
			MinOutputBytes: cfg.Converter.MinOutputBytes,
		},
		Renderer: renderer,
		Download: retry.Policy{
			Attempts: cfg.Pipeline.DownloadAttempts,
			Backoff:  retry.NewConstant(cfg.Pipeline.DownloadRetryDelay()),
		},
		Hub: hub,
	}, log)

	if err := controller.Register(dispatcher); err != nil {
		dispatcher.Shutdown()
		hub.Close()
		return nil, err
	}

	log.Info("Pipeline ready", "cache_dir", store.Dir(), "workers", cfg.Pipeline.Workers, "font", renderer.FontName())
	return NewService(cfg, []channel.Adapter{adapter}, dispatcher, controller, hub, log)
}

// NewConverter builds the animated sticker converter and runs its startup
// checks. Failures are logged, not returned: animated stickers then fall back
// to the placeholder gif.
func NewConverter(cfg config.ConverterConfig, log *slog.Logger) *job.ProcessConverter {
	if log == nil {
		log = slog.Default()
	}

	converter := job.NewProcessConverter(cfg.Command, cfg.Script, log)
	converter.PreflightArgs = cfg.PreflightArgs

	err := converter.Check()
	if err == nil {
		err = converter.Preflight(context.Background())
	}
	if err == nil {
		return converter
	}

	log.Warn("Animated sticker converter unavailable, placeholders will be sent", "error", err)
	if cfg.Script == config.DefaultConverterScript {
		if _, statErr := os.Stat(cfg.Script); errors.Is(statErr, os.ErrNotExist) {
			log.Warn("Default converter script is not bundled: install python-lottie with `pip install lottie Pillow`, "+
				"then place a .tgs to .gif script at converter.script or set converter.command to [\"lottie_convert.py\"]",
				"script", cfg.Script)
		}
	}
	return converter
}
