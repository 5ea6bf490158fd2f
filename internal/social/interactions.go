package social

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

const (
	maxPostLength    = 1000
	maxCommentLength = 500
)

// SubjectPurger removes notifications that reference a post.
type SubjectPurger interface {
	PurgeSubject(ctx context.Context, postID string) (int, error)
}

// Interactions owns posts, likes and comments and reports the actions that
// notify post authors.
type Interactions struct {
	content  store.ContentStore
	recorder ActionRecorder
	purger   SubjectPurger
	clock    func() time.Time
	newID    func() string
}

func NewInteractions(content store.ContentStore, recorder ActionRecorder, purger SubjectPurger, opts ...Option) *Interactions {
	s := apply(append([]Option{WithIDGenerator(uuid.NewString)}, opts...))
	return &Interactions{
		content:  content,
		recorder: recorder,
		purger:   purger,
		clock:    s.clock,
		newID:    s.newID,
	}
}

type LikeState struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func checkBody(body string, max int, what string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", validationErr("%s must not be empty", what)
	}
	if utf8.RuneCountInString(body) > max {
		return "", validationErr("%s must be at most %d characters", what, max)
	}
	return body, nil
}

func (in *Interactions) getPost(ctx context.Context, postID string) (models.Post, error) {
	if strings.TrimSpace(postID) == "" {
		return models.Post{}, validationErr("post id is required")
	}
	p, err := in.content.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Post{}, notFoundErr("post")
	}
	if err != nil {
		return models.Post{}, storeErr("get post", err)
	}
	return p, nil
}

func (in *Interactions) record(ctx context.Context, a Action) {
	if in.recorder == nil {
		return
	}
	if _, err := in.recorder.RecordAction(ctx, a); err != nil {
		logg.Error("social/interactions", "Failed to record "+string(a.Kind())+" notification", err)
	}
}

func (in *Interactions) CreatePost(ctx context.Context, authorID, body string) (models.Post, error) {
	if strings.TrimSpace(authorID) == "" {
		return models.Post{}, validationErr("author is required")
	}
	body, err := checkBody(body, maxPostLength, "post body")
	if err != nil {
		return models.Post{}, err
	}
	post := models.Post{
		ID:       in.newID(),
		AuthorID: authorID,
		Body:     body,
		Created:  in.clock().UTC(),
	}
	if err := in.content.AddPost(ctx, post); err != nil {
		return models.Post{}, storeErr("add post", err)
	}
	return post, nil
}

// DeletePost removes a post owned by requesterID. Likes, comments and
// notifications about the post are deleted first, concurrently. The post row
// is deleted only after all of them succeeded.
func (in *Interactions) DeletePost(ctx context.Context, postID, requesterID string) error {
	post, err := in.getPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		return notFoundErr("post")
	}

	var g multierror.Group
	g.Go(func() error { return in.content.DeleteLikes(ctx, post.ID) })
	g.Go(func() error { return in.content.DeleteComments(ctx, post.ID) })
	if in.purger != nil {
		g.Go(func() error {
			_, err := in.purger.PurgeSubject(ctx, post.ID)
			return err
		})
	}
	if err := g.Wait().ErrorOrNil(); err != nil {
		return storeErr("delete post dependents", err)
	}

	if err := in.content.DeletePost(ctx, post); err != nil {
		return storeErr("delete post", err)
	}
	return nil
}

// ToggleLike likes or unlikes the post for userID. Adding a like notifies the author.
func (in *Interactions) ToggleLike(ctx context.Context, postID, userID string) (LikeState, error) {
	if strings.TrimSpace(userID) == "" {
		return LikeState{}, validationErr("user is required")
	}
	post, err := in.getPost(ctx, postID)
	if err != nil {
		return LikeState{}, err
	}

	liked, err := in.content.HasLiked(ctx, post.ID, userID)
	if err != nil {
		return LikeState{}, storeErr("check like", err)
	}

	state := LikeState{Liked: !liked}
	if liked {
		if _, err := in.content.RemoveLike(ctx, post.ID, userID); err != nil {
			return LikeState{}, storeErr("remove like", err)
		}
	} else {
		added, err := in.content.AddLike(ctx, post.ID, userID, in.clock().UTC())
		if err != nil {
			return LikeState{}, storeErr("add like", err)
		}
		if added {
			in.record(ctx, LikeAction{ActorID: userID, RecipientID: post.AuthorID, PostID: post.ID})
		}
	}

	if state.LikesCount, err = in.content.CountLikes(ctx, post.ID); err != nil {
		return LikeState{}, storeErr("count likes", err)
	}
	return state, nil
}

// AddComment stores a comment and notifies the post author.
func (in *Interactions) AddComment(ctx context.Context, postID, authorID, body string) (models.Comment, error) {
	if strings.TrimSpace(authorID) == "" {
		return models.Comment{}, validationErr("author is required")
	}
	body, err := checkBody(body, maxCommentLength, "comment")
	if err != nil {
		return models.Comment{}, err
	}
	post, err := in.getPost(ctx, postID)
	if err != nil {
		return models.Comment{}, err
	}

	c := models.Comment{
		ID:       in.newID(),
		PostID:   post.ID,
		AuthorID: authorID,
		Body:     body,
		Created:  in.clock().UTC(),
	}
	if err := in.content.AddComment(ctx, c); err != nil {
		return models.Comment{}, storeErr("add comment", err)
	}

	in.record(ctx, CommentAction{ActorID: authorID, RecipientID: post.AuthorID, PostID: post.ID, CommentID: c.ID})
	return c, nil
}
