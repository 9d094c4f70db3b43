// Package intake turns inbound chat events into cache hits or conversion jobs
// and routes job outcomes back to the originating chat.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
	"stickergif/pkg/channel"
	"stickergif/pkg/dispatch"
	"stickergif/pkg/job"
	"stickergif/pkg/logger"
	"stickergif/pkg/retry"
)

const (
	WarningNoContent     = "Send a sticker(animated or static) or unicode emoji."
	WarningUnsupported   = "Video stickers are not supported. Send an animated or static sticker."
	WarningConvertFailed = "Convert is failed."
	WarningRenderFailed  = "Could not draw this symbol."
)

// symbolPattern matches the copyright and registered marks, the BMP block
// from general punctuation through CJK symbols, and the supplementary emoji
// and pictograph blocks.
var symbolPattern = regexp.MustCompile(`©|®|[\x{2000}-\x{3300}]|[\x{1F000}-\x{1FBFF}]`)

// ExtractSymbols returns every recognized symbol in text, in order.
func ExtractSymbols(text string) []string {
	return symbolPattern.FindAllString(text, -1)
}

// Submitter accepts jobs for asynchronous execution.
type Submitter interface {
	Submit(job.Job) error
}

// Registrar installs per-kind job handlers.
type Registrar interface {
	RegisterHandler(job.Kind, dispatch.Handler) error
}

// Options carries the collaborators jobs are built with.
type Options struct {
	Converter job.Converter
	Animated  job.AnimatedOptions
	Renderer  job.Renderer
	Download  retry.Policy
	Hub       *bus.Hub
}

// Controller handles inbound events. It holds no per-chat state: every job
// carries the chat it was requested from.
type Controller struct {
	cache    *cache.Cache
	submit   Submitter
	fetcher  channel.Fetcher
	delivery channel.Delivery
	opts     Options
	log      *slog.Logger
}

func New(c *cache.Cache, submit Submitter, fetcher channel.Fetcher, delivery channel.Delivery, opts Options, log *slog.Logger) *Controller {
	return &Controller{
		cache:    c,
		submit:   submit,
		fetcher:  fetcher,
		delivery: delivery,
		opts:     opts,
		log:      logger.Component(log, "intake"),
	}
}

// Register installs the completion handler for every job kind.
func (c *Controller) Register(r Registrar) error {
	for _, kind := range job.Kinds() {
		if err := r.RegisterHandler(kind, c.complete); err != nil {
			return fmt.Errorf("register %s handler: %w", kind, err)
		}
	}
	return nil
}

// Handle processes one inbound event. Text is handled before any sticker.
func (c *Controller) Handle(ctx context.Context, event bus.IncomingEvent) {
	origin := event.Origin
	// Replies still go out when the adapter is stopping.
	sendCtx := context.WithoutCancel(ctx)

	if !event.HasPayload() {
		c.log.Debug("Event without payload", "chat", origin.String())
		c.warn(sendCtx, origin, WarningNoContent)
		return
	}

	if event.Text != "" {
		symbols := ExtractSymbols(event.Text)
		if len(symbols) == 0 {
			c.log.Debug("No recognized symbols in text", "chat", origin.String())
			c.warn(sendCtx, origin, WarningNoContent)
		}
		for _, symbol := range symbols {
			c.handleSymbol(sendCtx, origin, symbol)
		}
	}

	if event.Sticker != nil {
		c.handleSticker(ctx, sendCtx, origin, *event.Sticker)
	}
}

func (c *Controller) handleSymbol(ctx context.Context, origin bus.ChatHandle, symbol string) {
	key := cache.SymbolKey(symbol)
	if c.deliverCached(ctx, origin, key) {
		return
	}

	c.submitJob(ctx, job.NewSymbol(key, origin, symbol, c.cache.OutputPath(key), c.opts.Renderer, c.log))
}

func (c *Controller) handleSticker(ctx context.Context, sendCtx context.Context, origin bus.ChatHandle, sticker bus.Sticker) {
	if sticker.Video {
		c.log.Info("Video sticker not supported", "chat", origin.String(), "unique_id", sticker.UniqueID)
		c.warn(sendCtx, origin, WarningUnsupported)
		return
	}
	if strings.TrimSpace(sticker.UniqueID) == "" || strings.TrimSpace(sticker.FileID) == "" {
		c.warn(sendCtx, origin, WarningNoContent)
		return
	}

	key := cache.StickerKey(sticker.UniqueID)
	if c.deliverCached(sendCtx, origin, key) {
		return
	}

	ext := cache.ExtWebP
	if sticker.Animated {
		ext = cache.ExtTGS
	}
	staging := c.cache.StagingPath(key, ext)

	if err := c.download(ctx, sticker.FileID, staging); err != nil {
		// The job still runs and its own input checks decide the outcome.
		c.log.Error("Sticker download failed", "chat", origin.String(), "key", string(key), "error", job.WrapError(job.FailureDownloadFailed, sticker.FileID, err))
	}

	var j job.Job
	if sticker.Animated {
		j = job.NewAnimatedSticker(key, origin, staging, c.opts.Converter, c.opts.Animated, c.log)
	} else {
		j = job.NewStaticSticker(key, origin, staging, c.log)
	}
	c.submitJob(sendCtx, j)
}

func (c *Controller) deliverCached(ctx context.Context, origin bus.ChatHandle, key cache.Key) bool {
	path, ok := c.cache.Lookup(key)
	if !ok {
		return false
	}

	c.log.Info("Cache hit", "chat", origin.String(), "key", string(key))
	c.opts.Hub.PublishEvent(ctx, bus.Event{Type: bus.EventCacheHit, Origin: origin, Key: string(key)})
	c.sendArtifact(ctx, origin, path)
	return true
}

func (c *Controller) download(ctx context.Context, fileID string, path string) error {
	policy := c.opts.Download
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error) {
			c.log.Warn("Download attempt failed, retrying", "file_id", fileID, "attempt", attempt, "error", err)
		}
	}

	return policy.Do(ctx, func(ctx context.Context, _ int) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create staging file: %w", err)
		}

		fetchErr := c.fetcher.Fetch(ctx, fileID, f)
		closeErr := f.Close()
		if err := errors.Join(fetchErr, closeErr); err != nil {
			_ = os.Remove(path)
			return err
		}
		return nil
	})
}

func (c *Controller) submitJob(ctx context.Context, j job.Job) {
	err := c.submit.Submit(j)
	switch {
	case err == nil:
		c.log.Info("Job queued", "kind", j.Kind(), "job_id", j.ID(), "key", string(j.Key()), "chat", j.Origin().String())
		c.opts.Hub.PublishEvent(ctx, bus.Event{Type: bus.EventJobQueued, Origin: j.Origin(), Key: string(j.Key()), JobID: j.ID(), Kind: string(j.Kind())})
	case errors.Is(err, dispatch.ErrUnroutable):
		c.log.Info("Job dropped", "kind", j.Kind(), "job_id", j.ID(), "reason", job.FailureUnroutableJob)
	default:
		c.log.Warn("Job rejected", "kind", j.Kind(), "job_id", j.ID(), "error", err)
	}
}

// complete runs on a dispatcher worker.
func (c *Controller) complete(ctx context.Context, j job.Job) {
	out := j.Execute(ctx)
	origin := j.Origin()

	if out.OK() {
		c.opts.Hub.PublishEvent(ctx, bus.Event{
			Type:    bus.EventJobCompleted,
			Origin:  origin,
			Key:     string(j.Key()),
			JobID:   j.ID(),
			Kind:    string(j.Kind()),
			Payload: map[string]string{"placeholder": fmt.Sprint(out.Placeholder)},
		})
		c.sendArtifact(ctx, origin, out.Path)
		return
	}

	c.log.Error("Job failed", "kind", j.Kind(), "job_id", j.ID(), "failure", out.Failure, "error", out.Err)
	c.opts.Hub.PublishEvent(ctx, bus.Event{
		Type:   bus.EventJobFailed,
		Origin: origin,
		Key:    string(j.Key()),
		JobID:  j.ID(),
		Kind:   string(j.Kind()),
		Error:  string(out.Failure),
	})

	text := WarningConvertFailed
	if out.Failure == job.FailureRenderFailed {
		text = WarningRenderFailed
	}
	c.warn(ctx, origin, text)
}

func (c *Controller) sendArtifact(ctx context.Context, origin bus.ChatHandle, path string) {
	if err := c.delivery.SendArtifact(ctx, origin, path); err != nil {
		c.deliveryFailed(ctx, origin, err)
	}
}

func (c *Controller) warn(ctx context.Context, origin bus.ChatHandle, text string) {
	if err := c.delivery.SendWarning(ctx, origin, text); err != nil {
		c.deliveryFailed(ctx, origin, err)
		return
	}
	c.opts.Hub.PublishEvent(ctx, bus.Event{Type: bus.EventWarningSent, Origin: origin, Payload: map[string]string{"text": text}})
}

func (c *Controller) deliveryFailed(ctx context.Context, origin bus.ChatHandle, err error) {
	err = job.WrapError(job.FailureDeliveryFailed, "", err)
	c.log.Error("Delivery failed", "chat", origin.String(), "error", err)
	c.opts.Hub.PublishEvent(ctx, bus.Event{Type: bus.EventDeliveryFailed, Origin: origin, Error: err.Error()})
}
