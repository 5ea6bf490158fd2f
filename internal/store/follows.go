package store

import (
	"context"
	"errors"
	"time"

	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
)

// --- Follow operations ---

// follow_edges is written only through lightweight transactions; mixing in
// plain writes on the same partition breaks Paxos ordering.
const (
	insertFollowEdge = `INSERT INTO follow_edges (follower_id, followee_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`
	deleteFollowEdge = `DELETE FROM follow_edges WHERE follower_id = ? AND followee_id = ? IF EXISTS`
)

// CreateFollow claims the edge in follow_edges with a lightweight transaction,
// then writes both listing tables in one logged batch.
func (s *Store) CreateFollow(ctx context.Context, f models.Follow) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(insertFollowEdge,
		f.FollowerID, f.FolloweeID, f.Created,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create follow edge", err)
		return err
	}
	if !applied {
		return ErrAlreadyExists
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO follows_by_follower (follower_id, created_at, followee_id) VALUES (?, ?, ?)`,
		f.FollowerID, f.Created, f.FolloweeID)
	batch.Query(`INSERT INTO follows_by_followee (followee_id, created_at, follower_id) VALUES (?, ?, ?)`,
		f.FolloweeID, f.Created, f.FollowerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to write follow listings", err)
		// roll the edge back so a retry is not reported as a duplicate
		if _, rerr := s.deleteEdge(context.WithoutCancel(ctx), f.FollowerID, f.FolloweeID); rerr != nil {
			logg.Error("store", "Failed to roll back follow edge", rerr)
		}
		return err
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return nil
}

func (s *Store) GetFollow(ctx context.Context, followerID, followeeID string) (models.Follow, error) {
	f := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
	err := s.Session.Query(
		`SELECT created_at FROM follow_edges WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	).WithContext(ctx).Scan(&f.Created)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Follow{}, ErrNotFound
		}
		return models.Follow{}, err
	}
	return f, nil
}

// deleteEdge removes the follow_edges row and reports whether it existed.
func (s *Store) deleteEdge(ctx context.Context, followerID, followeeID string) (bool, error) {
	result := make(map[string]interface{})
	return s.Session.Query(deleteFollowEdge, followerID, followeeID).WithContext(ctx).MapScanCAS(result)
}

// DeleteFollow removes the edge, then both listing rows.
func (s *Store) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	f, err := s.GetFollow(ctx, followerID, followeeID)
	if err != nil {
		return err
	}

	applied, err := s.deleteEdge(ctx, followerID, followeeID)
	if err != nil {
		logg.Error("store", "Failed to delete follow edge", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM follows_by_follower WHERE follower_id = ? AND created_at = ? AND followee_id = ?`,
		followerID, f.Created, followeeID)
	batch.Query(`DELETE FROM follows_by_followee WHERE followee_id = ? AND created_at = ? AND follower_id = ?`,
		followeeID, f.Created, followerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete follow listings", err)
		return err
	}
	return nil
}

// ListFollowers returns up to limit edges pointing at userID, newest first.
func (s *Store) ListFollowers(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	iter := s.Session.Query(
		`SELECT follower_id, created_at FROM follows_by_followee WHERE followee_id = ? LIMIT ?`,
		userID, limit,
	).WithContext(ctx).Iter()

	var res []models.Follow
	var id string
	var created time.Time
	for iter.Scan(&id, &created) {
		res = append(res, models.Follow{FollowerID: id, FolloweeID: userID, Created: created})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, err
	}
	return res, nil
}

// ListFollowing returns up to limit edges leaving userID, newest first.
func (s *Store) ListFollowing(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	iter := s.Session.Query(
		`SELECT followee_id, created_at FROM follows_by_follower WHERE follower_id = ? LIMIT ?`,
		userID, limit,
	).WithContext(ctx).Iter()

	var res []models.Follow
	var id string
	var created time.Time
	for iter.Scan(&id, &created) {
		res = append(res, models.Follow{FollowerID: userID, FolloweeID: id, Created: created})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get following", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) CountFollowers(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows_by_followee WHERE followee_id = ?`, userID)
}

func (s *Store) CountFollowing(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows_by_follower WHERE follower_id = ?`, userID)
}
