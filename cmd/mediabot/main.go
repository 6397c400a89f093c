package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tgrange/mediabot/common/environment"
	"github.com/tgrange/mediabot/common/version"
	"github.com/tgrange/mediabot/internal/bot"
)

func main() {
	// Local runs keep their settings in a .env file; absence is fine.
	_ = godotenv.Load()

	slog.Info("mediabot starting", "version", version.Info())

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app, err := bot.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the application configuration from the environment.
func loadConfig() (bot.Config, error) {
	token, err := environment.RequiredString("TELEGRAM_TOKEN")
	if err != nil {
		return bot.Config{}, err
	}

	return bot.Config{
		Token:           token,
		Debug:           environment.BoolOr("TELEGRAM_DEBUG", false),
		DownloadDir:     environment.StringOr("DOWNLOAD_DIR", "downloads"),
		SearchLimit:     environment.IntOr("SEARCH_RESULT_LIMIT", 10),
		DownloadTimeout: environment.DurationOr("DOWNLOAD_TIMEOUT", 10*time.Minute),
		YTDLPPath:       environment.StringOr("YTDLP_PATH", "yt-dlp"),
	}, nil
}
