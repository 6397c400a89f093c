// Package resolver defines the media resolution contract the conversation
// engine drives: search a text query into candidates, and turn a resolvable
// reference plus a format selector into a downloaded file.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgrange/mediabot/internal/bot/session"
)

// Format is a quality/codec constraint for a download.
type Format string

const (
	FormatBest      Format = "best"
	Format360p      Format = "360p"
	Format144p      Format = "144p"
	FormatBestAudio Format = "bestaudio"
)

// Result describes a completed download.
type Result struct {
	// FilePath is the local path of the downloaded file in the staging
	// directory.
	FilePath string
	// Title is the resolver-reported media title.
	Title string
	// SourceURL is the canonical URL of the media.
	SourceURL string
}

// ErrNoResults is returned by Search when the query matched nothing. Callers
// should use errors.Is to distinguish it from real resolution failures.
var ErrNoResults = errors.New("no results")

// ResolutionError wraps a search failure other than an empty result set.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string { return fmt.Sprintf("resolve: %v", e.Err) }
func (e *ResolutionError) Unwrap() error { return e.Err }

// DownloadError wraps a failed download attempt.
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string { return fmt.Sprintf("download: %v", e.Err) }
func (e *DownloadError) Unwrap() error { return e.Err }

// Resolver is the engine's view of the media backend. Implementations may
// block for seconds; both operations honour ctx cancellation.
type Resolver interface {
	// Search returns up to maxResults candidates for a free-text query.
	// Fails with ErrNoResults when nothing matched, *ResolutionError otherwise.
	Search(ctx context.Context, query string, maxResults int) ([]session.Candidate, error)

	// Download fetches ref with the given content kind and format selector.
	// Fails with *DownloadError.
	Download(ctx context.Context, ref string, kind session.Kind, format Format) (*Result, error)
}
