package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tgrange/mediabot/internal/bot/session"
)

// formatSelectors maps a Format to a yt-dlp format expression. Video formats
// prefer mp4/m4a for broad playback compatibility and fall back to an
// unconstrained "best" when the source has no matching combination.
var formatSelectors = map[Format]string{
	FormatBest:      "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	Format360p:      "bestvideo[height<=360][ext=mp4]+bestaudio[ext=m4a]/best[height<=360][ext=mp4]/best",
	Format144p:      "bestvideo[height<=144][ext=mp4]+bestaudio[ext=m4a]/best[height<=144][ext=mp4]/best",
	FormatBestAudio: "bestaudio/best",
}

// YTDLP resolves media through the yt-dlp command-line tool. It is safe for
// concurrent use: every download writes to a unique uuid-derived path inside
// the staging directory, so parallel downloads never collide.
type YTDLP struct {
	bin     string
	dir     string
	timeout time.Duration
	log     *slog.Logger
}

// NewYTDLP creates a resolver that invokes bin (usually "yt-dlp") and stages
// downloads under dir. Downloads are aborted after timeout.
func NewYTDLP(bin, dir string, timeout time.Duration, log *slog.Logger) *YTDLP {
	if log == nil {
		log = slog.Default()
	}
	return &YTDLP{bin: bin, dir: dir, timeout: timeout, log: log}
}

// searchEntry is the subset of a flat-playlist entry we care about.
type searchEntry struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

type searchInfo struct {
	Entries []searchEntry `json:"entries"`
}

// downloadInfo is the subset of the --print-json info dict we care about.
type downloadInfo struct {
	Title      string `json:"title"`
	WebpageURL string `json:"webpage_url"`
}

// Search runs a ytsearch query and returns up to maxResults candidates.
func (y *YTDLP) Search(ctx context.Context, query string, maxResults int) ([]session.Candidate, error) {
	target := searchTarget(query, maxResults)
	cmd := exec.CommandContext(ctx, y.bin,
		"--dump-single-json",
		"--flat-playlist",
		"--no-warnings",
		target,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, &ResolutionError{Err: fmt.Errorf("yt-dlp search: %s", execFailure(err))}
	}

	var info searchInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &ResolutionError{Err: fmt.Errorf("parse search output: %w", err)}
	}

	candidates := parseCandidates(info, maxResults)
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}

	y.log.Debug("search completed", "query", query, "results", len(candidates))
	return candidates, nil
}

// Download fetches ref into the staging directory and reports the media
// metadata. The produced file is named after a fresh uuid so that concurrent
// downloads, even of the same media, never share a path.
func (y *YTDLP) Download(ctx context.Context, ref string, kind session.Kind, format Format) (*Result, error) {
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	stem := uuid.NewString()
	args := downloadArgs(ref, kind, format, filepath.Join(y.dir, stem+".%(ext)s"))

	started := time.Now()
	cmd := exec.CommandContext(ctx, y.bin, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, &DownloadError{Err: fmt.Errorf("yt-dlp: %s", execFailure(err))}
	}

	var info downloadInfo
	// --print-json emits the info dict as the first stdout line.
	if line, _, found := strings.Cut(string(out), "\n"); found || line != "" {
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			y.log.Warn("could not parse download metadata", "err", err)
		}
	}

	path, err := y.locateOutput(stem)
	if err != nil {
		return nil, &DownloadError{Err: err}
	}

	title := info.Title
	if title == "" {
		title = "No title"
	}
	source := info.WebpageURL
	if source == "" {
		source = ref
	}

	y.log.Info("download completed",
		"ref", ref, "kind", kind, "format", format,
		"file", path, "elapsed", time.Since(started))

	return &Result{FilePath: path, Title: title, SourceURL: source}, nil
}

// locateOutput finds the file yt-dlp produced for the given uuid stem. The
// final extension is not knowable up front (audio extraction rewrites it), so
// the stem is globbed instead.
func (y *YTDLP) locateOutput(stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(y.dir, stem+".*"))
	if err != nil {
		return "", fmt.Errorf("locate output: %w", err)
	}
	if len(matches) == 0 {
		return "", errors.New("yt-dlp reported success but produced no file")
	}
	// Post-processing can briefly leave intermediates behind; prefer the
	// shortest name, which is the final container.
	sort.Slice(matches, func(i, j int) bool { return len(matches[i]) < len(matches[j]) })
	return matches[0], nil
}

// searchTarget builds the ytsearch pseudo-URL for a capped text search.
func searchTarget(query string, maxResults int) string {
	return fmt.Sprintf("ytsearch%d:%s", maxResults, query)
}

// parseCandidates converts flat-playlist entries into candidates, capping at
// maxResults and skipping entries without a resolvable reference.
func parseCandidates(info searchInfo, maxResults int) []session.Candidate {
	candidates := make([]session.Candidate, 0, maxResults)
	for _, e := range info.Entries {
		if len(candidates) == maxResults {
			break
		}
		ref := e.WebpageURL
		if ref == "" {
			ref = e.URL
		}
		if ref == "" {
			continue
		}
		title := e.Title
		if title == "" {
			title = "No title"
		}
		candidates = append(candidates, session.Candidate{Title: title, URL: ref})
	}
	return candidates
}

// downloadArgs builds the yt-dlp argument list for a single download.
func downloadArgs(ref string, kind session.Kind, format Format, outTmpl string) []string {
	selector, ok := formatSelectors[format]
	if !ok {
		selector = formatSelectors[FormatBest]
	}

	args := []string{
		ref,
		"-o", outTmpl,
		"-f", selector,
		"--no-playlist",
		"--no-warnings",
		"--print-json",
	}

	if kind == session.KindAudio {
		args = append(args, "-x", "--audio-format", "mp3")
	} else {
		args = append(args, "--merge-output-format", "mp4")
	}

	return args
}

// execFailure extracts a readable reason from an exec error, preferring the
// last stderr line yt-dlp printed.
func execFailure(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if tail := lastLine(string(exitErr.Stderr)); tail != "" {
			return tail
		}
	}
	return err.Error()
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
