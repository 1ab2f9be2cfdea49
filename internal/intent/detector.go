// Package intent derives request flags from message text using
// configurable trigger substrings.
package intent

import (
	"log/slog"
	"strings"
)

// Intent names a flag the reply flow branches on.
type Intent string

const (
	Image     Intent = "image"
	WebSearch Intent = "webSearch"
)

// Flags is the result of scanning one message.
type Flags struct {
	WantsImage     bool
	WantsWebSearch bool
}

// Detector matches lower-cased text against per-intent trigger lists.
type Detector struct {
	triggers map[Intent][]string // pre-lowered, empty entries dropped
	logger   *slog.Logger
}

func NewDetector(triggers map[Intent][]string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	lowered := make(map[Intent][]string, len(triggers))
	for name, words := range triggers {
		kws := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				kws = append(kws, w)
			}
		}
		lowered[name] = kws
	}
	return &Detector{triggers: lowered, logger: logger}
}

// Detect reports which intents the text triggers.
func (d *Detector) Detect(text string) Flags {
	lower := strings.ToLower(text)
	f := Flags{
		WantsImage:     d.match(Image, lower),
		WantsWebSearch: d.match(WebSearch, lower),
	}
	if f.WantsImage || f.WantsWebSearch {
		d.logger.Debug("intent matched", "image", f.WantsImage, "web_search", f.WantsWebSearch)
	}
	return f
}

// Matches reports whether text contains any trigger of the given intent.
func (d *Detector) Matches(name Intent, text string) bool {
	return d.match(name, strings.ToLower(text))
}

func (d *Detector) match(name Intent, lower string) bool {
	for _, kw := range d.triggers[name] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
