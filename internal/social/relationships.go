package social

import (
	"context"
	"errors"
	"strings"
	"time"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

// Relationships manages directed follow edges.
type Relationships struct {
	follows  store.FollowStore
	users    store.UserStore
	recorder ActionRecorder
	limits   PageLimits
	clock    func() time.Time
}

func NewRelationships(follows store.FollowStore, users store.UserStore, recorder ActionRecorder, opts ...Option) *Relationships {
	s := apply(opts)
	return &Relationships{
		follows:  follows,
		users:    users,
		recorder: recorder,
		limits:   s.limits,
		clock:    s.clock,
	}
}

// FollowEntry is one row of a follower or following listing. IsFollowing
// tells whether the viewer follows UserID.
type FollowEntry struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	FollowedAt  time.Time `json:"followed_at"`
	IsFollowing bool      `json:"is_following"`
}

type FollowStats struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

func (r *Relationships) requireUser(ctx context.Context, userID string) (models.User, error) {
	u, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, notFoundErr("user")
	}
	if err != nil {
		return models.User{}, storeErr("get user", err)
	}
	return u, nil
}

// Follow creates the edge follower -> followee and notifies the followee.
// A failed notification does not undo the follow.
func (r *Relationships) Follow(ctx context.Context, follower, followee string) (models.Follow, error) {
	if strings.TrimSpace(follower) == "" || strings.TrimSpace(followee) == "" {
		return models.Follow{}, validationErr("follower and followee are required")
	}
	if follower == followee {
		return models.Follow{}, ErrSelfReference
	}
	if _, err := r.requireUser(ctx, followee); err != nil {
		return models.Follow{}, err
	}

	f := models.Follow{FollowerID: follower, FolloweeID: followee, Created: r.clock().UTC()}
	if err := r.follows.CreateFollow(ctx, f); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return models.Follow{}, ErrDuplicateRelationship
		}
		return models.Follow{}, storeErr("create follow", err)
	}

	if r.recorder != nil {
		if _, err := r.recorder.RecordAction(ctx, FollowAction{ActorID: follower, RecipientID: followee}); err != nil {
			logg.Error("social/relationships", "Failed to record follow notification", err)
		}
	}
	return f, nil
}

// Unfollow deletes exactly the edge follower -> followee.
func (r *Relationships) Unfollow(ctx context.Context, follower, followee string) error {
	if strings.TrimSpace(follower) == "" || strings.TrimSpace(followee) == "" {
		return validationErr("follower and followee are required")
	}
	err := r.follows.DeleteFollow(ctx, follower, followee)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr("relationship")
	}
	if err != nil {
		return storeErr("delete follow", err)
	}
	return nil
}

func (r *Relationships) IsFollowing(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	_, err := r.follows.GetFollow(ctx, a, b)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("get follow", err)
	}
	return true, nil
}

// ListFollowers lists who follows userID, newest edge first.
func (r *Relationships) ListFollowers(ctx context.Context, userID, viewerID string, page, pageSize int) (Listing[FollowEntry], error) {
	return r.list(ctx, userID, viewerID, page, pageSize, true)
}

// ListFollowing lists whom userID follows, newest edge first.
func (r *Relationships) ListFollowing(ctx context.Context, userID, viewerID string, page, pageSize int) (Listing[FollowEntry], error) {
	return r.list(ctx, userID, viewerID, page, pageSize, false)
}

func (r *Relationships) list(ctx context.Context, userID, viewerID string, page, pageSize int, followers bool) (Listing[FollowEntry], error) {
	if strings.TrimSpace(userID) == "" {
		return Listing[FollowEntry]{}, validationErr("user is required")
	}
	page, size, err := r.limits.normalize(page, pageSize)
	if err != nil {
		return Listing[FollowEntry]{}, err
	}
	if _, err := r.requireUser(ctx, userID); err != nil {
		return Listing[FollowEntry]{}, err
	}

	var total int
	var edges []models.Follow
	if followers {
		if total, err = r.follows.CountFollowers(ctx, userID); err != nil {
			return Listing[FollowEntry]{}, storeErr("count followers", err)
		}
		if edges, err = r.follows.ListFollowers(ctx, userID, page*size); err != nil {
			return Listing[FollowEntry]{}, storeErr("list followers", err)
		}
	} else {
		if total, err = r.follows.CountFollowing(ctx, userID); err != nil {
			return Listing[FollowEntry]{}, storeErr("count following", err)
		}
		if edges, err = r.follows.ListFollowing(ctx, userID, page*size); err != nil {
			return Listing[FollowEntry]{}, storeErr("list following", err)
		}
	}

	edges = window(edges, page, size)
	entries := make([]FollowEntry, 0, len(edges))
	for _, f := range edges {
		other := f.FolloweeID
		if followers {
			other = f.FollowerID
		}
		entry := FollowEntry{UserID: other, FollowedAt: f.Created}

		u, err := r.users.GetUser(ctx, other)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return Listing[FollowEntry]{}, storeErr("get user", err)
		default:
			entry.Username = u.Username
		}

		if entry.IsFollowing, err = r.IsFollowing(ctx, viewerID, other); err != nil {
			return Listing[FollowEntry]{}, err
		}
		entries = append(entries, entry)
	}
	return newPage(entries, total, page, size), nil
}

// CountStats returns follower and following counts of userID.
func (r *Relationships) CountStats(ctx context.Context, userID string) (FollowStats, error) {
	if strings.TrimSpace(userID) == "" {
		return FollowStats{}, validationErr("user is required")
	}
	followers, err := r.follows.CountFollowers(ctx, userID)
	if err != nil {
		return FollowStats{}, storeErr("count followers", err)
	}
	following, err := r.follows.CountFollowing(ctx, userID)
	if err != nil {
		return FollowStats{}, storeErr("count following", err)
	}
	return FollowStats{Followers: followers, Following: following}, nil
}
