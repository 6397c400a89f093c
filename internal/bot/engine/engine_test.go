package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tgrange/mediabot/internal/bot/engine"
	"github.com/tgrange/mediabot/internal/bot/resolver"
	"github.com/tgrange/mediabot/internal/bot/session"
)

// fakeResolver scripts the media backend for engine tests.
type fakeResolver struct {
	searchFn      func(query string, maxResults int) ([]session.Candidate, error)
	downloadFn    func(ref string, kind session.Kind, format resolver.Format) (*resolver.Result, error)
	searchCalls   int
	downloadCalls int
}

func (f *fakeResolver) Search(_ context.Context, query string, maxResults int) ([]session.Candidate, error) {
	f.searchCalls++
	if f.searchFn == nil {
		return nil, resolver.ErrNoResults
	}
	return f.searchFn(query, maxResults)
}

func (f *fakeResolver) Download(_ context.Context, ref string, kind session.Kind, format resolver.Format) (*resolver.Result, error) {
	f.downloadCalls++
	if f.downloadFn == nil {
		return nil, &resolver.DownloadError{Err: errors.New("not scripted")}
	}
	return f.downloadFn(ref, kind, format)
}

func newEngine(res *fakeResolver) (*engine.Engine, *session.MemoryStore) {
	store := session.NewMemoryStore()
	return engine.New(store, res, 10, nil), store
}

func TestOnboarding(t *testing.T) {
	e, store := newEngine(&fakeResolver{})
	ctx := context.Background()

	reply := e.Handle(ctx, 1, engine.Start{})
	if len(reply.Buttons) != 2 {
		t.Fatalf("language prompt: got %d button rows, want 2", len(reply.Buttons))
	}
	if reply.Buttons[0][0].Token != engine.TokenFrench || reply.Buttons[1][0].Token != engine.TokenEnglish {
		t.Errorf("language tokens: got %q/%q", reply.Buttons[0][0].Token, reply.Buttons[1][0].Token)
	}

	reply = e.Handle(ctx, 1, engine.LanguagePick{Lang: "en"})
	if reply.Text != "What would you like to do?" {
		t.Errorf("menu text: got %q", reply.Text)
	}

	sess := store.Get(1)
	if sess.Language != "en" {
		t.Errorf("language: got %q, want en", sess.Language)
	}
	if len(sess.History) != 0 {
		t.Errorf("history after onboarding: got %d entries, want 0", len(sess.History))
	}
}

func TestLanguagePickResetsHistory(t *testing.T) {
	e, store := newEngine(&fakeResolver{})

	store.Put(2, &session.Session{
		Language: "en",
		History:  []session.HistoryEntry{{Title: "old", SourceURL: "https://x/old", Kind: session.KindAudio}},
	})

	e.Handle(context.Background(), 2, engine.LanguagePick{Lang: "fr"})

	sess := store.Get(2)
	if sess.Language != "fr" {
		t.Errorf("language: got %q, want fr", sess.Language)
	}
	if len(sess.History) != 0 {
		t.Errorf("history must reset on language pick, got %d entries", len(sess.History))
	}
}

func TestStartKeepsExistingSession(t *testing.T) {
	e, store := newEngine(&fakeResolver{})

	store.Put(3, &session.Session{
		Language: "en",
		History:  []session.HistoryEntry{{Title: "kept", SourceURL: "https://x/kept", Kind: session.KindVideo}},
	})

	e.Handle(context.Background(), 3, engine.Start{})

	sess := store.Get(3)
	if sess.Language != "en" || len(sess.History) != 1 {
		t.Errorf("/start must not reset the session: %+v", sess)
	}
}

func TestModePickClearsSearchState(t *testing.T) {
	e, store := newEngine(&fakeResolver{})

	store.Put(4, &session.Session{
		Language:      "fr",
		PendingQuery:  "stale",
		SearchResults: []session.Candidate{{Title: "stale", URL: "https://x/stale"}},
	})

	reply := e.Handle(context.Background(), 4, engine.ModePick{Mode: session.KindAudio})
	if reply.Text != "Entrez le titre ou l’artiste 🎶 :" {
		t.Errorf("audio prompt: got %q", reply.Text)
	}

	sess := store.Get(4)
	if sess.Mode != session.KindAudio {
		t.Errorf("mode: got %q", sess.Mode)
	}
	if sess.PendingQuery != "" || sess.SearchResults != nil {
		t.Errorf("search state not cleared: %+v", sess)
	}
}

func TestSearchRendersCandidates(t *testing.T) {
	longTitle := strings.Repeat("x", 80)
	res := &fakeResolver{
		searchFn: func(query string, maxResults int) ([]session.Candidate, error) {
			if maxResults != 10 {
				t.Errorf("maxResults: got %d, want 10", maxResults)
			}
			return []session.Candidate{
				{Title: "Song A", URL: "https://x/a"},
				{Title: longTitle, URL: "https://x/b"},
			}, nil
		},
	}
	e, store := newEngine(res)
	store.Put(5, &session.Session{Language: "en", Mode: session.KindVideo})

	reply := e.Handle(context.Background(), 5, engine.Text{Content: "some query"})
	if reply.Text != "Results found: choose the video:" {
		t.Errorf("text: got %q", reply.Text)
	}
	// Two candidate rows plus the menu row.
	if len(reply.Buttons) != 3 {
		t.Fatalf("button rows: got %d, want 3", len(reply.Buttons))
	}
	if reply.Buttons[0][0].Token != engine.SelectToken(0) {
		t.Errorf("first token: got %q", reply.Buttons[0][0].Token)
	}
	if got := reply.Buttons[1][0].Label; len([]rune(got)) > 50+len("2. ") {
		t.Errorf("long title not truncated: %q (%d runes)", got, len([]rune(got)))
	}
	if reply.Buttons[2][0].Token != engine.TokenMenu {
		t.Errorf("last row must be the menu button, got %q", reply.Buttons[2][0].Token)
	}

	sess := store.Get(5)
	if len(sess.SearchResults) != 2 {
		t.Errorf("search results stored: got %d", len(sess.SearchResults))
	}
	if sess.PendingQuery != "some query" {
		t.Errorf("pending query: got %q", sess.PendingQuery)
	}
}

func TestURLBypassesSearch(t *testing.T) {
	res := &fakeResolver{}
	e, store := newEngine(res)
	store.Put(6, &session.Session{Language: "en", Mode: session.KindVideo})

	reply := e.Handle(context.Background(), 6, engine.Text{Content: "https://example.com/v"})
	if res.searchCalls != 0 {
		t.Errorf("search must not run for a URL, got %d calls", res.searchCalls)
	}
	if reply.Text != "Choose quality:" {
		t.Errorf("expected quality prompt, got %q", reply.Text)
	}
	if store.Get(6).PendingQuery != "https://example.com/v" {
		t.Errorf("pending query: got %q", store.Get(6).PendingQuery)
	}
	// Video quality tiers plus the menu row.
	if len(reply.Buttons) != 2 || len(reply.Buttons[0]) != 3 {
		t.Fatalf("quality rows: got %v", reply.Buttons)
	}
	wantTokens := []string{engine.TokenBest, engine.Token360p, engine.Token144p}
	for i, want := range wantTokens {
		if reply.Buttons[0][i].Token != want {
			t.Errorf("quality token[%d]: got %q, want %q", i, reply.Buttons[0][i].Token, want)
		}
	}
}

func TestSelection(t *testing.T) {
	candidates := []session.Candidate{
		{Title: "A", URL: "https://x/a"},
		{Title: "B", URL: "https://x/b"},
	}

	tests := []struct {
		name        string
		results     []session.Candidate
		index       int
		wantPending string
		wantEmpty   bool
	}{
		{"valid first", candidates, 0, "https://x/a", false},
		{"valid second", candidates, 1, "https://x/b", false},
		{"out of range", candidates, 2, "", true},
		{"negative", candidates, -1, "", true},
		{"no results at all", nil, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newEngine(&fakeResolver{})
			store.Put(7, &session.Session{
				Language:      "en",
				Mode:          session.KindAudio,
				SearchResults: tt.results,
			})

			reply := e.Handle(context.Background(), 7, engine.Select{Index: tt.index})
			sess := store.Get(7)

			if tt.wantEmpty {
				if !reply.Empty() {
					t.Errorf("stale selection must be a no-op, got %+v", reply)
				}
				if sess.PendingQuery != "" {
					t.Errorf("session mutated by stale selection: %q", sess.PendingQuery)
				}
				return
			}
			if sess.PendingQuery != tt.wantPending {
				t.Errorf("pending query: got %q, want %q", sess.PendingQuery, tt.wantPending)
			}
			if reply.Text != "Choose quality:" {
				t.Errorf("expected quality prompt, got %q", reply.Text)
			}
		})
	}
}

func TestAudioQualityPrompt(t *testing.T) {
	e, store := newEngine(&fakeResolver{})
	store.Put(8, &session.Session{
		Language:      "fr",
		Mode:          session.KindAudio,
		SearchResults: []session.Candidate{{Title: "A", URL: "https://x/a"}},
	})

	reply := e.Handle(context.Background(), 8, engine.Select{Index: 0})
	if len(reply.Buttons) != 2 || len(reply.Buttons[0]) != 1 {
		t.Fatalf("audio quality rows: got %v", reply.Buttons)
	}
	if reply.Buttons[0][0].Token != engine.TokenBestAudio {
		t.Errorf("audio quality token: got %q", reply.Buttons[0][0].Token)
	}
}

func TestDownloadScenario(t *testing.T) {
	// /start → en → free text → select 0 → bestaudio, success and failure arms.
	t.Run("success appends history and delivers file", func(t *testing.T) {
		res := &fakeResolver{
			searchFn: func(string, int) ([]session.Candidate, error) {
				return []session.Candidate{{Title: "Lofi Mix", URL: "https://x/lofi"}}, nil
			},
			downloadFn: func(ref string, kind session.Kind, format resolver.Format) (*resolver.Result, error) {
				if ref != "https://x/lofi" {
					t.Errorf("download ref: got %q", ref)
				}
				if kind != session.KindAudio || format != resolver.FormatBestAudio {
					t.Errorf("download kind/format: got %q/%q", kind, format)
				}
				return &resolver.Result{
					FilePath:  "/tmp/staging/abc.mp3",
					Title:     "Lofi Mix (Full)",
					SourceURL: "https://x/lofi",
				}, nil
			},
		}
		e, store := newEngine(res)
		ctx := context.Background()

		e.Handle(ctx, 9, engine.Start{})
		e.Handle(ctx, 9, engine.LanguagePick{Lang: "en"})
		e.Handle(ctx, 9, engine.ModePick{Mode: session.KindAudio})
		e.Handle(ctx, 9, engine.Text{Content: "lofi beats"})
		e.Handle(ctx, 9, engine.Select{Index: 0})
		reply := e.Handle(ctx, 9, engine.QualityPick{Format: resolver.FormatBestAudio})

		if reply.File == nil {
			t.Fatalf("expected file reply, got %+v", reply)
		}
		if reply.File.Kind != session.KindAudio || reply.File.Path != "/tmp/staging/abc.mp3" {
			t.Errorf("file reply: %+v", reply.File)
		}

		sess := store.Get(9)
		if len(sess.History) != 1 {
			t.Fatalf("history: got %d entries, want 1", len(sess.History))
		}
		entry := sess.History[0]
		if entry.Kind != session.KindAudio || entry.Title != "Lofi Mix (Full)" || entry.SourceURL != "https://x/lofi" {
			t.Errorf("history entry: %+v", entry)
		}
		if sess.PendingQuery != "" || sess.SearchResults != nil {
			t.Errorf("pending state not consumed: %+v", sess)
		}
	})

	t.Run("failure leaves history unchanged and reports in English", func(t *testing.T) {
		res := &fakeResolver{
			searchFn: func(string, int) ([]session.Candidate, error) {
				return []session.Candidate{{Title: "Lofi Mix", URL: "https://x/lofi"}}, nil
			},
			downloadFn: func(string, session.Kind, resolver.Format) (*resolver.Result, error) {
				return nil, &resolver.DownloadError{Err: errors.New("403 forbidden")}
			},
		}
		e, store := newEngine(res)
		ctx := context.Background()

		e.Handle(ctx, 10, engine.LanguagePick{Lang: "en"})
		e.Handle(ctx, 10, engine.ModePick{Mode: session.KindAudio})
		e.Handle(ctx, 10, engine.Text{Content: "lofi beats"})
		e.Handle(ctx, 10, engine.Select{Index: 0})
		reply := e.Handle(ctx, 10, engine.QualityPick{Format: resolver.FormatBestAudio})

		if reply.Text != "Error: 403 forbidden" {
			t.Errorf("error text: got %q", reply.Text)
		}
		if len(store.Get(10).History) != 0 {
			t.Errorf("history must stay empty on failure")
		}
	})
}

func TestQualityPreconditions(t *testing.T) {
	t.Run("missing mode reports a nudge", func(t *testing.T) {
		e, store := newEngine(&fakeResolver{})
		store.Put(11, &session.Session{Language: "en", PendingQuery: "https://x/a"})

		reply := e.Handle(context.Background(), 11, engine.QualityPick{Format: resolver.FormatBest})
		if reply.Text != "Pick Audio or Video from the menu first." {
			t.Errorf("nudge: got %q", reply.Text)
		}
	})

	t.Run("missing pending query is a no-op", func(t *testing.T) {
		res := &fakeResolver{}
		e, store := newEngine(res)
		store.Put(12, &session.Session{Language: "en", Mode: session.KindVideo})

		reply := e.Handle(context.Background(), 12, engine.QualityPick{Format: resolver.FormatBest})
		if !reply.Empty() {
			t.Errorf("expected no-op, got %+v", reply)
		}
		if res.downloadCalls != 0 {
			t.Errorf("download must not run without a pending query")
		}
	})
}

func TestSearchFailures(t *testing.T) {
	t.Run("no results", func(t *testing.T) {
		e, store := newEngine(&fakeResolver{})
		store.Put(13, &session.Session{Language: "fr", Mode: session.KindVideo})

		reply := e.Handle(context.Background(), 13, engine.Text{Content: "introuvable"})
		if reply.Text != "Aucun résultat trouvé pour cette recherche." {
			t.Errorf("no-results text: got %q", reply.Text)
		}
	})

	t.Run("resolution error surfaces the reason", func(t *testing.T) {
		res := &fakeResolver{
			searchFn: func(string, int) ([]session.Candidate, error) {
				return nil, &resolver.ResolutionError{Err: errors.New("network unreachable")}
			},
		}
		e, store := newEngine(res)
		store.Put(14, &session.Session{Language: "en", Mode: session.KindVideo})

		reply := e.Handle(context.Background(), 14, engine.Text{Content: "query"})
		if reply.Text != "Search error: network unreachable" {
			t.Errorf("search error text: got %q", reply.Text)
		}
	})
}

func TestHistoryRendering(t *testing.T) {
	t.Run("empty history is localized", func(t *testing.T) {
		e, store := newEngine(&fakeResolver{})
		store.Put(15, &session.Session{Language: "en"})

		reply := e.Handle(context.Background(), 15, engine.ShowHistory{})
		if reply.Text != "No downloads yet." {
			t.Errorf("empty history: got %q", reply.Text)
		}
		if reply.Markdown {
			t.Error("empty history must not request Markdown")
		}
	})

	t.Run("entries render in insertion order", func(t *testing.T) {
		e, store := newEngine(&fakeResolver{})
		store.Put(16, &session.Session{
			Language: "fr",
			History: []session.HistoryEntry{
				{Title: "First", SourceURL: "https://x/1", Kind: session.KindAudio},
				{Title: "Second", SourceURL: "https://x/2", Kind: session.KindVideo},
			},
		})

		reply := e.Handle(context.Background(), 16, engine.ShowHistory{})
		want := "1. [First](https://x/1) (audio)\n2. [Second](https://x/2) (video)"
		if reply.Text != want {
			t.Errorf("history rendering:\ngot  %q\nwant %q", reply.Text, want)
		}
		if !reply.Markdown {
			t.Error("history must request Markdown rendering")
		}
	})
}

func TestDecodeToken(t *testing.T) {
	tests := []struct {
		data   string
		want   engine.Event
		wantOK bool
	}{
		{"fr", engine.LanguagePick{Lang: "fr"}, true},
		{"en", engine.LanguagePick{Lang: "en"}, true},
		{"audio", engine.ModePick{Mode: session.KindAudio}, true},
		{"video", engine.ModePick{Mode: session.KindVideo}, true},
		{"history", engine.ShowHistory{}, true},
		{"menu", engine.MenuNav{}, true},
		{"best", engine.QualityPick{Format: resolver.FormatBest}, true},
		{"360p", engine.QualityPick{Format: resolver.Format360p}, true},
		{"144p", engine.QualityPick{Format: resolver.Format144p}, true},
		{"bestaudio", engine.QualityPick{Format: resolver.FormatBestAudio}, true},
		{"select_0", engine.Select{Index: 0}, true},
		{"select_9", engine.Select{Index: 9}, true},
		{"select_x", nil, false},
		{"select_-1", nil, false},
		{"select_", nil, false},
		{"unknown", nil, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.data), func(t *testing.T) {
			got, ok := engine.DecodeToken(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("event: got %#v, want %#v", got, tt.want)
			}
		})
	}
}
