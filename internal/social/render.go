package social

import (
	"strings"

	"example.com/socialgraph/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	keyFollow         = "notification.follow"
	keyLike           = "notification.like"
	keyComment        = "notification.comment"
	keyGeneric        = "notification.generic"
	keyFeedSuggestion = "feed.suggestion"

	defaultGenericMessage = "You have a new notification."
	defaultFeedSuggestion = "Follow people to see their posts here!"
)

var supportedLanguages = []language.Tag{language.English, language.Korean}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Renderer turns a notification kind and the sender's current username into
// display text. Messages are never stored, so renames show up immediately.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer picks the closest supported language for locale, English otherwise.
func NewRenderer(locale string) *Renderer {
	requested, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		requested = language.English
	}
	_, idx, _ := languageMatcher.Match(requested)
	return &Renderer{printer: message.NewPrinter(supportedLanguages[idx])}
}

// Message renders the text for one notification. An unknown sender or kind
// falls back to the generic message.
func (r *Renderer) Message(kind models.Kind, senderName string) string {
	if strings.TrimSpace(senderName) == "" {
		return r.localize(keyGeneric, defaultGenericMessage)
	}
	switch kind {
	case models.KindFollow:
		return r.printer.Sprintf(keyFollow, senderName)
	case models.KindLike:
		return r.printer.Sprintf(keyLike, senderName)
	case models.KindComment:
		return r.printer.Sprintf(keyComment, senderName)
	}
	return r.localize(keyGeneric, defaultGenericMessage)
}

func (r *Renderer) FeedSuggestion() string {
	return r.localize(keyFeedSuggestion, defaultFeedSuggestion)
}

func (r *Renderer) localize(key, fallback string) string {
	v := strings.TrimSpace(r.printer.Sprintf(key))
	if v == "" || v == key {
		return fallback
	}
	return v
}
