package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgrange/mediabot/internal/bot/engine"
	"github.com/tgrange/mediabot/internal/bot/session"
)

// startCommand is the single entry command that begins onboarding.
const startCommand = "start"

// Inbound is a decoded transport event plus the routing data needed to
// answer it.
type Inbound struct {
	UserID     int64
	ChatID     int64
	MessageID  int
	CallbackID string
	Event      engine.Event
}

// FromCallback reports whether the event originated from a button press.
func (in Inbound) FromCallback() bool { return in.CallbackID != "" }

// Decode converts a raw Telegram update into an Inbound event. Updates that
// carry nothing the engine understands (stickers, unknown commands, unknown
// callback tokens) return ok=false and must be ignored.
func Decode(update tgbotapi.Update) (Inbound, bool) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || cb.Message == nil {
			return Inbound{}, false
		}
		ev, ok := engine.DecodeToken(cb.Data)
		if !ok {
			return Inbound{}, false
		}
		return Inbound{
			UserID:     cb.From.ID,
			ChatID:     cb.Message.Chat.ID,
			MessageID:  cb.Message.MessageID,
			CallbackID: cb.ID,
			Event:      ev,
		}, true

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return Inbound{}, false
		}
		in := Inbound{
			UserID:    msg.From.ID,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
		}
		if msg.IsCommand() {
			if msg.Command() != startCommand {
				return Inbound{}, false
			}
			in.Event = engine.Start{}
			return in, true
		}
		if msg.Text == "" {
			return Inbound{}, false
		}
		in.Event = engine.Text{Content: msg.Text}
		return in, true
	}

	return Inbound{}, false
}

// sender abstracts the transport client for tests.
type sender interface {
	Send(ctx context.Context, msg tgbotapi.Chattable) error
}

// Adapter renders engine replies into Telegram payloads.
type Adapter struct {
	sender sender
	log    *slog.Logger
}

// NewAdapter creates a presentation adapter over the given sender.
func NewAdapter(s sender, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{sender: s, log: log}
}

// Deliver sends a reply back to the chat the event came from. Prompts that
// answer a button press edit the originating message in place; everything
// else, files included, goes out as a new message.
func (a *Adapter) Deliver(ctx context.Context, in Inbound, reply engine.Reply) error {
	if reply.Empty() {
		return nil
	}

	if reply.File != nil {
		return a.sender.Send(ctx, filePayload(in.ChatID, reply.File))
	}

	markup := keyboard(reply.Buttons)

	if in.FromCallback() {
		if markup != nil {
			edit := tgbotapi.NewEditMessageTextAndMarkup(in.ChatID, in.MessageID, reply.Text, *markup)
			edit.ParseMode = parseMode(reply)
			return a.sender.Send(ctx, edit)
		}
		edit := tgbotapi.NewEditMessageText(in.ChatID, in.MessageID, reply.Text)
		edit.ParseMode = parseMode(reply)
		return a.sender.Send(ctx, edit)
	}

	msg := tgbotapi.NewMessage(in.ChatID, reply.Text)
	msg.ParseMode = parseMode(reply)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	return a.sender.Send(ctx, msg)
}

// filePayload picks the delivery representation for a downloaded file: audio
// goes out as a document, video as a playable clip.
func filePayload(chatID int64, f *engine.File) tgbotapi.Chattable {
	media := tgbotapi.FilePath(f.Path)
	if f.Kind == session.KindVideo {
		video := tgbotapi.NewVideo(chatID, media)
		video.Caption = f.Title
		return video
	}
	doc := tgbotapi.NewDocument(chatID, media)
	doc.Caption = f.Title
	return doc
}

// keyboard converts engine button rows into an inline keyboard, or nil when
// there are none.
func keyboard(rows [][]engine.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
		}
		kb = append(kb, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &markup
}

func parseMode(reply engine.Reply) string {
	if reply.Markdown {
		return tgbotapi.ModeMarkdown
	}
	return ""
}
