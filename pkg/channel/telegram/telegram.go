package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"stickergif/pkg/bus"
	"stickergif/pkg/channel"
	"stickergif/pkg/config"
	"stickergif/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const revalidateTimeout = 10 * time.Second

// botAPI is the subset of *telego.Bot the adapter calls.
type botAPI interface {
	GetMe(ctx context.Context) (*telego.User, error)
	SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Adapter bridges Telegram updates into pipeline events and delivers results back.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	bot       botAPI
	poller    *telego.Bot
	client    *http.Client
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs the bot client.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	client, err := httpClient(cfg)
	if err != nil {
		return nil, err
	}

	bot, err := telego.NewBot(token, telego.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		bot:       bot,
		poller:    bot,
		client:    client,
		limiter:   newLimiter(cfg.RateLimit, cfg.RateBurst),
		log:       logger.Component(log, "channel.telegram"),
	}, nil
}

// httpClient builds the client shared by the bot API and file downloads.
func httpClient(cfg config.TelegramConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy := strings.TrimSpace(cfg.Proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("parse telegram.proxy %q: invalid url", proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport, Timeout: cfg.RequestTimeout()}, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Name returns the channel identifier used in chat handles and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling and hands each accepted message to handler on its
// own goroutine. It returns after polling stops and every handler returned.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if a.poller == nil {
		return errors.New("telegram bot is not initialized")
	}

	me, err := a.poller.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}

	updates, err := a.poller.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "bot", me.Username)

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil {
				continue
			}
			if message.From == nil {
				a.log.Debug("Ignoring message without sender")
				continue
			}

			senderID := strconv.FormatInt(message.From.ID, 10)
			if !a.senderAllowed(senderID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
				continue
			}

			event := eventFromMessage(message)
			a.log.Info("Received message",
				"chat", event.Origin.String(),
				"sender_id", senderID,
				"update_id", update.UpdateID,
				"sticker", event.Sticker != nil,
				"content", previewText(event.Text),
			)

			handlers.Go(func() {
				handler(ctx, event)
			})
		}
	}
}

// eventFromMessage maps a Telegram message onto the pipeline event model.
func eventFromMessage(message *telego.Message) bus.IncomingEvent {
	event := bus.IncomingEvent{
		Origin:     bus.ChatHandle{Channel: channelName, ChatID: message.Chat.ID},
		Text:       message.Text,
		ReceivedAt: time.Unix(message.Date, 0).UTC(),
	}
	if message.Date == 0 {
		event.ReceivedAt = time.Now().UTC()
	}
	if s := message.Sticker; s != nil {
		event.Sticker = &bus.Sticker{
			FileID:   s.FileID,
			UniqueID: s.FileUniqueID,
			Animated: s.IsAnimated,
			Video:    s.IsVideo,
		}
	}
	return event
}

// SendArtifact uploads the gif at path as a silent animation.
func (a *Adapter) SendArtifact(ctx context.Context, origin bus.ChatHandle, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	a.log.Info("Sending animation", "chat", origin.String(), "path", path)
	params := tu.Animation(tu.ID(origin.ChatID), tu.File(f)).WithDisableNotification()
	if _, err := a.bot.SendAnimation(ctx, params); err != nil {
		a.sendFailed(err)
		return fmt.Errorf("send animation: %w", err)
	}
	return nil
}

// SendWarning sends a plain text notice.
func (a *Adapter) SendWarning(ctx context.Context, origin bus.ChatHandle, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	a.log.Info("Sending message", "chat", origin.String(), "content", previewText(text))
	if _, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(origin.ChatID), text)); err != nil {
		a.sendFailed(err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// sendFailed logs a send error and re-validates the bot connection in the background.
func (a *Adapter) sendFailed(err error) {
	a.log.Error("Failed to send telegram message", "error", err)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
		defer cancel()
		if _, err := a.bot.GetMe(ctx); err != nil {
			a.log.Warn("Telegram connection check failed", "error", err)
			return
		}
		a.log.Info("Telegram connection re-validated")
	}()
}

// Fetch downloads the file with fileID into w.
func (a *Adapter) Fetch(ctx context.Context, fileID string, w io.Writer) error {
	file, err := a.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	if strings.TrimSpace(file.FilePath) == "" {
		return fmt.Errorf("get file: no download path for %s", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("read file body: %w", err)
	}
	a.log.Debug("Downloaded file", "file_id", fileID, "bytes", n)
	return nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
