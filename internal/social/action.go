package social

import (
	"strings"

	"example.com/socialgraph/internal/models"
)

// Action is a social action that may notify its recipient. The concrete
// variants carry exactly the subject references their kind requires.
type Action interface {
	Kind() models.Kind
	Actor() string
	Recipient() string
	subjects() (postID, commentID string)
	validate() error
}

type FollowAction struct {
	ActorID     string
	RecipientID string
}

type LikeAction struct {
	ActorID     string
	RecipientID string
	PostID      string
}

type CommentAction struct {
	ActorID     string
	RecipientID string
	PostID      string
	CommentID   string
}

func (a FollowAction) Kind() models.Kind { return models.KindFollow }
func (a FollowAction) Actor() string { return a.ActorID }
func (a FollowAction) Recipient() string { return a.RecipientID }
func (a FollowAction) subjects() (string, string) { return "", "" }

func (a LikeAction) Kind() models.Kind { return models.KindLike }
func (a LikeAction) Actor() string { return a.ActorID }
func (a LikeAction) Recipient() string { return a.RecipientID }
func (a LikeAction) subjects() (string, string) { return a.PostID, "" }

func (a CommentAction) Kind() models.Kind { return models.KindComment }
func (a CommentAction) Actor() string { return a.ActorID }
func (a CommentAction) Recipient() string { return a.RecipientID }
func (a CommentAction) subjects() (string, string) { return a.PostID, a.CommentID }

func (a FollowAction) validate() error {
	return requireParties(a.ActorID, a.RecipientID)
}

func (a LikeAction) validate() error {
	if err := requireParties(a.ActorID, a.RecipientID); err != nil {
		return err
	}
	if strings.TrimSpace(a.PostID) == "" {
		return validationErr("like requires a post")
	}
	return nil
}

func (a CommentAction) validate() error {
	if err := requireParties(a.ActorID, a.RecipientID); err != nil {
		return err
	}
	if strings.TrimSpace(a.PostID) == "" {
		return validationErr("comment requires a post")
	}
	if strings.TrimSpace(a.CommentID) == "" {
		return validationErr("comment requires a comment id")
	}
	return nil
}

func requireParties(actor, recipient string) error {
	if strings.TrimSpace(actor) == "" {
		return validationErr("actor is required")
	}
	if strings.TrimSpace(recipient) == "" {
		return validationErr("recipient is required")
	}
	return nil
}

// NewAction builds the variant for kind and validates its subjects.
func NewAction(kind models.Kind, actor, recipient, postID, commentID string) (Action, error) {
	var a Action
	switch kind {
	case models.KindFollow:
		a = FollowAction{ActorID: actor, RecipientID: recipient}
	case models.KindLike:
		a = LikeAction{ActorID: actor, RecipientID: recipient, PostID: postID}
	case models.KindComment:
		a = CommentAction{ActorID: actor, RecipientID: recipient, PostID: postID, CommentID: commentID}
	default:
		return nil, validationErr("unknown notification kind %q", kind)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}
