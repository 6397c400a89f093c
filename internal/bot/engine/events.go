package engine

import (
	"strconv"
	"strings"

	"github.com/tgrange/mediabot/internal/bot/resolver"
	"github.com/tgrange/mediabot/internal/bot/session"
)

// EventKind names an event type for the transition table and logs.
type EventKind string

const (
	KindStart        EventKind = "start"
	KindLanguagePick EventKind = "language_pick"
	KindMenuNav      EventKind = "menu_nav"
	KindShowHistory  EventKind = "show_history"
	KindModePick     EventKind = "mode_pick"
	KindText         EventKind = "text"
	KindSelect       EventKind = "select"
	KindQualityPick  EventKind = "quality_pick"
)

// Event is a user action decoded once at the transport boundary. The set is
// closed: the engine never inspects raw callback strings.
type Event interface {
	Kind() EventKind
}

// Start is the onboarding command (/start).
type Start struct{}

// LanguagePick selects the conversation language.
type LanguagePick struct{ Lang string }

// MenuNav asks for the main menu.
type MenuNav struct{}

// ShowHistory asks for the download history.
type ShowHistory struct{}

// ModePick selects audio or video mode.
type ModePick struct{ Mode session.Kind }

// Text is a free-text message: either a search query or a direct URL.
type Text struct{ Content string }

// Select picks a search result by positional index.
type Select struct{ Index int }

// QualityPick selects the download format.
type QualityPick struct{ Format resolver.Format }

func (Start) Kind() EventKind        { return KindStart }
func (LanguagePick) Kind() EventKind { return KindLanguagePick }
func (MenuNav) Kind() EventKind      { return KindMenuNav }
func (ShowHistory) Kind() EventKind  { return KindShowHistory }
func (ModePick) Kind() EventKind     { return KindModePick }
func (Text) Kind() EventKind         { return KindText }
func (Select) Kind() EventKind       { return KindSelect }
func (QualityPick) Kind() EventKind  { return KindQualityPick }

// Callback token vocabulary. The same tokens are attached to outgoing buttons
// and decoded from incoming callback queries, so the vocabulary lives in one
// place.
const (
	TokenFrench    = "fr"
	TokenEnglish   = "en"
	TokenAudio     = "audio"
	TokenVideo     = "video"
	TokenHistory   = "history"
	TokenMenu      = "menu"
	TokenBest      = "best"
	Token360p      = "360p"
	Token144p      = "144p"
	TokenBestAudio = "bestaudio"

	tokenSelectPrefix = "select_"
)

// SelectToken builds the callback token for a search result index.
func SelectToken(index int) string {
	return tokenSelectPrefix + strconv.Itoa(index)
}

// DecodeToken converts callback data into an Event. Unknown or malformed
// tokens return ok=false and must be ignored by the caller.
func DecodeToken(data string) (Event, bool) {
	switch data {
	case TokenFrench, TokenEnglish:
		return LanguagePick{Lang: data}, true
	case TokenAudio:
		return ModePick{Mode: session.KindAudio}, true
	case TokenVideo:
		return ModePick{Mode: session.KindVideo}, true
	case TokenHistory:
		return ShowHistory{}, true
	case TokenMenu:
		return MenuNav{}, true
	case TokenBest:
		return QualityPick{Format: resolver.FormatBest}, true
	case Token360p:
		return QualityPick{Format: resolver.Format360p}, true
	case Token144p:
		return QualityPick{Format: resolver.Format144p}, true
	case TokenBestAudio:
		return QualityPick{Format: resolver.FormatBestAudio}, true
	}

	if rest, ok := strings.CutPrefix(data, tokenSelectPrefix); ok {
		index, err := strconv.Atoi(rest)
		if err != nil || index < 0 {
			return nil, false
		}
		return Select{Index: index}, true
	}

	return nil, false
}
