// Package bot wires the Telegram transport, the conversation engine, the
// session store, and the media resolver into a running application.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tgrange/mediabot/common/trace"
	"github.com/tgrange/mediabot/internal/bot/engine"
	"github.com/tgrange/mediabot/internal/bot/resolver"
	"github.com/tgrange/mediabot/internal/bot/session"
	"github.com/tgrange/mediabot/internal/bot/telegram"
)

// Config holds application configuration.
type Config struct {
	// Token is the Telegram bot API token.
	Token string
	// Debug enables verbose Telegram API logging.
	Debug bool
	// DownloadDir is the staging directory for downloaded files; created if
	// absent.
	DownloadDir string
	// SearchLimit caps the candidates shown per search (default 10).
	SearchLimit int
	// DownloadTimeout bounds a single download so a stuck fetch cannot hold
	// a user's queue forever.
	DownloadTimeout time.Duration
	// YTDLPPath is the yt-dlp binary to invoke (default "yt-dlp").
	YTDLPPath string
}

// App is the assembled bot.
type App struct {
	config  Config
	client  *telegram.Client
	adapter *telegram.Adapter
	engine  *engine.Engine
	queue   *dispatchQueue
	log     *slog.Logger
}

// New builds the application from config.
func New(config Config) (*App, error) {
	log := slog.Default()

	if err := os.MkdirAll(config.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	client, err := telegram.New(config.Token, config.Debug, log)
	if err != nil {
		return nil, fmt.Errorf("connect to Telegram: %w", err)
	}

	store := session.NewMemoryStore()
	res := resolver.NewYTDLP(config.YTDLPPath, config.DownloadDir, config.DownloadTimeout, log)
	eng := engine.New(store, res, config.SearchLimit, log)

	return &App{
		config:  config,
		client:  client,
		adapter: telegram.NewAdapter(client, log),
		engine:  eng,
		queue:   newDispatchQueue(),
		log:     log,
	}, nil
}

// Run consumes Telegram updates until ctx is cancelled. Each update is
// decoded on the polling goroutine and handed to the originating user's
// serial queue, so one user's download never delays another user.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("bot is running", "account", a.client.Username(),
		"download_dir", a.config.DownloadDir)

	for update := range a.client.Updates(ctx) {
		in, ok := telegram.Decode(update)
		if !ok {
			continue
		}

		// Acknowledge button presses right away; the actual work may take a
		// while and the client spinner should not run that long.
		if in.FromCallback() {
			a.client.AnswerCallback(ctx, in.CallbackID)
		}

		a.queue.Enqueue(in.UserID, func() {
			evCtx := trace.WithTraceID(ctx, trace.GenerateID())
			reply := a.engine.Handle(evCtx, in.UserID, in.Event)
			if err := a.adapter.Deliver(evCtx, in, reply); err != nil {
				a.log.Error("deliver reply failed",
					"trace", trace.FromContext(evCtx),
					"user", in.UserID, "chat", in.ChatID, "err", err)
			}
		})
	}

	a.log.Info("update stream closed, shutting down")
	return nil
}
