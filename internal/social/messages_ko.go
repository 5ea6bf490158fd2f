package social

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Korean

	message.SetString(lang, keyFollow, "%s님이 당신을 팔로우했습니다.")
	message.SetString(lang, keyLike, "%s님이 당신의 게시물을 좋아합니다.")
	message.SetString(lang, keyComment, "%s님이 당신의 게시물에 댓글을 달았습니다.")
	message.SetString(lang, keyGeneric, "새로운 알림이 있습니다.")
	message.SetString(lang, keyFeedSuggestion, "사람들을 팔로우해보세요!")
}
