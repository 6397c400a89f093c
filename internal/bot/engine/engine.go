// Package engine implements the per-user conversation state machine: it
// interprets decoded events against the session store, drives the media
// resolver, and emits presentation-neutral replies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tgrange/mediabot/common/trace"
	"github.com/tgrange/mediabot/internal/bot/locales"
	"github.com/tgrange/mediabot/internal/bot/resolver"
	"github.com/tgrange/mediabot/internal/bot/session"
)

// DefaultSearchLimit caps the number of candidates shown per search.
const DefaultSearchLimit = 10

// maxButtonTitle bounds candidate titles so button labels stay readable.
const maxButtonTitle = 50

// Button is a labeled choice carrying an opaque callback token.
type Button struct {
	Label string
	Token string
}

// File is a downloaded media file to deliver to the user. Kind selects the
// transport representation (document for audio, playable clip for video).
type File struct {
	Path  string
	Title string
	Kind  session.Kind
}

// Reply is the engine's answer to one event. A zero Reply means the event was
// ignored (e.g. a stale selection) and nothing should be sent.
type Reply struct {
	Text     string
	Buttons  [][]Button
	Markdown bool
	File     *File
}

// Empty reports whether the reply carries nothing to send.
func (r Reply) Empty() bool {
	return r.Text == "" && r.File == nil
}

// Engine advances one user's conversation per event. It is safe for
// concurrent use across users; events for the same user must be serialized by
// the caller (the bot dispatch queue does this).
type Engine struct {
	store       session.Store
	resolver    resolver.Resolver
	searchLimit int
	log         *slog.Logger
}

// New creates an engine over the given store and resolver. searchLimit <= 0
// selects DefaultSearchLimit.
func New(store session.Store, res resolver.Resolver, searchLimit int, log *slog.Logger) *Engine {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, resolver: res, searchLimit: searchLimit, log: log}
}

// applyFunc advances a session for one event and produces the reply.
type applyFunc func(e *Engine, ctx context.Context, userID int64, sess *session.Session, ev Event) Reply

// transitions is the event dispatch table. Every event kind is accepted from
// any state; per-event preconditions (valid index, pending query, mode) are
// checked inside the apply functions, mirroring the tolerance of the chat
// surface where buttons from old messages can arrive at any time.
var transitions = map[EventKind]applyFunc{
	KindStart:        (*Engine).applyStart,
	KindLanguagePick: (*Engine).applyLanguage,
	KindMenuNav:      (*Engine).applyMenu,
	KindShowHistory:  (*Engine).applyHistory,
	KindModePick:     (*Engine).applyMode,
	KindText:         (*Engine).applyText,
	KindSelect:       (*Engine).applySelect,
	KindQualityPick:  (*Engine).applyQuality,
}

// Handle routes one event through the transition table. It never returns an
// error: every failure is converted into localized user-facing text, and
// meaningless events yield an empty reply.
func (e *Engine) Handle(ctx context.Context, userID int64, ev Event) Reply {
	apply, ok := transitions[ev.Kind()]
	if !ok {
		return Reply{}
	}

	sess := e.store.Get(userID)
	from := sess.State()
	reply := apply(e, ctx, userID, sess, ev)

	e.log.Info("event handled",
		"trace", trace.FromContext(ctx),
		"user", userID,
		"event", ev.Kind(),
		"from", from,
		"to", sess.State())
	return reply
}

// applyStart shows the language prompt. An existing session is kept as-is so
// that /start never wipes history; only a language pick resets.
func (e *Engine) applyStart(_ context.Context, _ int64, sess *session.Session, _ Event) Reply {
	return Reply{
		Text: locales.T(sess.Language, "choose_language"),
		Buttons: [][]Button{
			{{Label: locales.T(sess.Language, "btn_french"), Token: TokenFrench}},
			{{Label: locales.T(sess.Language, "btn_english"), Token: TokenEnglish}},
		},
	}
}

// applyLanguage resets the session to a fresh one in the picked language.
// History is wiped by design: re-onboarding starts the conversation over.
func (e *Engine) applyLanguage(_ context.Context, userID int64, sess *session.Session, ev Event) Reply {
	lang := ev.(LanguagePick).Lang
	if !locales.Supported(lang) {
		return Reply{}
	}
	fresh := &session.Session{Language: lang}
	e.store.Put(userID, fresh)
	*sess = *fresh
	return e.mainMenu(fresh)
}

func (e *Engine) applyMenu(_ context.Context, _ int64, sess *session.Session, _ Event) Reply {
	return e.mainMenu(sess)
}

// applyHistory renders the download history as numbered Markdown links.
func (e *Engine) applyHistory(_ context.Context, _ int64, sess *session.Session, _ Event) Reply {
	if len(sess.History) == 0 {
		return Reply{Text: locales.T(sess.Language, "no_history")}
	}

	var b strings.Builder
	for i, h := range sess.History {
		fmt.Fprintf(&b, "%d. [%s](%s) (%s)\n", i+1, h.Title, h.SourceURL, h.Kind)
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Markdown: true}
}

// applyMode sets the content mode and clears any prior search state.
func (e *Engine) applyMode(_ context.Context, _ int64, sess *session.Session, ev Event) Reply {
	sess.Mode = ev.(ModePick).Mode
	sess.SearchResults = nil
	sess.PendingQuery = ""

	key := "prompt_video"
	if sess.Mode == session.KindAudio {
		key = "prompt_audio"
	}
	return Reply{Text: locales.T(sess.Language, key)}
}

// applyText handles a free-text message: a URL goes straight to the quality
// prompt, anything else becomes a capped search.
func (e *Engine) applyText(ctx context.Context, _ int64, sess *session.Session, ev Event) Reply {
	content := strings.TrimSpace(ev.(Text).Content)
	if content == "" {
		return Reply{}
	}
	sess.PendingQuery = content

	if isURL(content) {
		sess.SearchResults = nil
		return e.qualityPrompt(sess)
	}

	results, err := e.resolver.Search(ctx, content, e.searchLimit)
	if err != nil {
		if errors.Is(err, resolver.ErrNoResults) {
			return Reply{Text: locales.T(sess.Language, "no_results")}
		}
		e.log.Warn("search failed", "trace", trace.FromContext(ctx), "err", err)
		return Reply{Text: locales.Tf(sess.Language, "search_error", userReason(err))}
	}

	sess.SearchResults = results

	buttons := make([][]Button, 0, len(results)+1)
	for i, c := range results {
		label := fmt.Sprintf("%d. %s", i+1, truncate(c.Title, maxButtonTitle))
		buttons = append(buttons, []Button{{Label: label, Token: SelectToken(i)}})
	}
	buttons = append(buttons, e.menuRow(sess))

	return Reply{Text: locales.T(sess.Language, "results_found"), Buttons: buttons}
}

// applySelect resolves a positional selection against the current result
// list. Stale or out-of-range indices are silently ignored.
func (e *Engine) applySelect(ctx context.Context, userID int64, sess *session.Session, ev Event) Reply {
	index := ev.(Select).Index
	if index < 0 || index >= len(sess.SearchResults) {
		e.log.Debug("ignoring stale selection",
			"trace", trace.FromContext(ctx), "user", userID,
			"index", index, "results", len(sess.SearchResults))
		return Reply{}
	}
	sess.PendingQuery = sess.SearchResults[index].URL
	return e.qualityPrompt(sess)
}

// applyQuality runs the download for the pending query. On success the file
// is delivered and exactly one history entry is appended; on failure the user
// gets a localized error and the history stays untouched. Either way the
// pending query is consumed and the conversation returns to the main menu.
func (e *Engine) applyQuality(ctx context.Context, userID int64, sess *session.Session, ev Event) Reply {
	if sess.Mode == "" {
		return Reply{Text: locales.T(sess.Language, "need_mode")}
	}
	if sess.PendingQuery == "" {
		return Reply{}
	}

	ref := sess.PendingQuery
	kind := sess.Mode
	format := ev.(QualityPick).Format

	res, err := e.resolver.Download(ctx, ref, kind, format)

	sess.PendingQuery = ""
	sess.SearchResults = nil

	if err != nil {
		e.log.Warn("download failed",
			"trace", trace.FromContext(ctx), "user", userID,
			"ref", ref, "format", format, "err", err)
		return Reply{Text: locales.Tf(sess.Language, "download_error", userReason(err))}
	}

	sess.History = append(sess.History, session.HistoryEntry{
		Title:     res.Title,
		SourceURL: res.SourceURL,
		Kind:      kind,
	})

	return Reply{File: &File{Path: res.FilePath, Title: res.Title, Kind: kind}}
}

func (e *Engine) mainMenu(sess *session.Session) Reply {
	return Reply{
		Text: locales.T(sess.Language, "main_menu"),
		Buttons: [][]Button{
			{{Label: locales.T(sess.Language, "btn_audio"), Token: TokenAudio}},
			{{Label: locales.T(sess.Language, "btn_video"), Token: TokenVideo}},
			{{Label: locales.T(sess.Language, "btn_history"), Token: TokenHistory}},
		},
	}
}

// qualityPrompt offers the format choices for the current mode. Audio gets
// the single mp3 target; video (or an as-yet-unset mode) gets the three
// quality tiers.
func (e *Engine) qualityPrompt(sess *session.Session) Reply {
	var choices []Button
	if sess.Mode == session.KindAudio {
		choices = []Button{
			{Label: locales.T(sess.Language, "btn_mp3"), Token: TokenBestAudio},
		}
	} else {
		choices = []Button{
			{Label: locales.T(sess.Language, "btn_best"), Token: TokenBest},
			{Label: locales.T(sess.Language, "btn_360p"), Token: Token360p},
			{Label: locales.T(sess.Language, "btn_144p"), Token: Token144p},
		}
	}
	return Reply{
		Text:    locales.T(sess.Language, "choose_quality"),
		Buttons: [][]Button{choices, e.menuRow(sess)},
	}
}

func (e *Engine) menuRow(sess *session.Session) []Button {
	return []Button{{Label: locales.T(sess.Language, "btn_menu"), Token: TokenMenu}}
}

// isURL reports whether the message should be treated as a direct resolvable
// reference rather than a search query.
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// truncate bounds s to max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// userReason unwraps resolver errors down to the underlying cause so the
// user-visible message does not repeat the taxonomy prefix.
func userReason(err error) string {
	var re *resolver.ResolutionError
	if errors.As(err, &re) {
		return re.Err.Error()
	}
	var de *resolver.DownloadError
	if errors.As(err, &de) {
		return de.Err.Error()
	}
	return err.Error()
}
