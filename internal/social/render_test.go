package social

import (
	"testing"

	"example.com/socialgraph/internal/models"
)

func TestRenderer_English(t *testing.T) {
	t.Parallel()

	r := NewRenderer("en")
	cases := map[models.Kind]string{
		models.KindFollow:  "almaz started following you.",
		models.KindLike:    "almaz liked your post.",
		models.KindComment: "almaz commented on your post.",
	}
	for kind, want := range cases {
		if got := r.Message(kind, "almaz"); got != want {
			t.Fatalf("%s: expected %q, got %q", kind, want, got)
		}
	}
}

func TestRenderer_Korean(t *testing.T) {
	t.Parallel()

	r := NewRenderer("ko-KR")
	if got := r.Message(models.KindLike, "nur"); got != "nur님이 당신의 게시물을 좋아합니다." {
		t.Fatalf("unexpected korean message %q", got)
	}
	if got := r.FeedSuggestion(); got != "사람들을 팔로우해보세요!" {
		t.Fatalf("unexpected korean suggestion %q", got)
	}
}

func TestRenderer_Fallbacks(t *testing.T) {
	t.Parallel()

	r := NewRenderer("not a locale")
	if got := r.Message(models.KindFollow, ""); got != defaultGenericMessage {
		t.Fatalf("missing sender should render generic message, got %q", got)
	}
	if got := r.Message(models.Kind("poke"), "almaz"); got != defaultGenericMessage {
		t.Fatalf("unknown kind should render generic message, got %q", got)
	}
	if got := NewRenderer("fr").Message(models.KindFollow, "almaz"); got != "almaz started following you." {
		t.Fatalf("unsupported locale should fall back to english, got %q", got)
	}
}
