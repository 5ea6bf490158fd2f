package models

import "time"

type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Created  time.Time `json:"created"`
}

type Post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
}

type Comment struct {
	ID       string    `json:"id"`
	PostID   string    `json:"post_id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
}

// Follow is a directed edge: FollowerID receives FolloweeID's posts.
type Follow struct {
	FollowerID string    `json:"follower_id"`
	FolloweeID string    `json:"followee_id"`
	Created    time.Time `json:"created"`
}

type Kind string

const (
	KindFollow  Kind = "follow"
	KindLike    Kind = "like"
	KindComment Kind = "comment"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFollow, KindLike, KindComment:
		return true
	}
	return false
}

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	Kind        Kind      `json:"kind"`
	PostID      string    `json:"post_id,omitempty"`
	CommentID   string    `json:"comment_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	Created     time.Time `json:"created_at"`
}

// AuthorStats summarizes an author's posts for user suggestions.
type AuthorStats struct {
	AuthorID   string
	PostCount  int
	LatestPost time.Time
}
