package social

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, keyFollow, "%s started following you.")
	message.SetString(lang, keyLike, "%s liked your post.")
	message.SetString(lang, keyComment, "%s commented on your post.")
	message.SetString(lang, keyGeneric, defaultGenericMessage)
	message.SetString(lang, keyFeedSuggestion, defaultFeedSuggestion)
}
