package store

import (
	"context"
	"errors"
	"time"

	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
)

// timelineBucket is the single partition of posts_timeline used by explore.
const timelineBucket = "all"

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO posts (post_id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Body, post.Created)
	batch.Query(`INSERT INTO posts_by_author (author_id, created_at, post_id, body) VALUES (?, ?, ?, ?)`,
		post.AuthorID, post.Created, post.ID, post.Body)
	batch.Query(`INSERT INTO posts_timeline (bucket, created_at, post_id, author_id, body) VALUES (?, ?, ?, ?, ?)`,
		timelineBucket, post.Created, post.ID, post.AuthorID, post.Body)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, postID string) (models.Post, error) {
	p := models.Post{ID: postID}
	err := s.Session.Query(
		`SELECT author_id, body, created_at FROM posts WHERE post_id = ?`,
		postID,
	).WithContext(ctx).Scan(&p.AuthorID, &p.Body, &p.Created)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Post{}, ErrNotFound
		}
		logg.Error("store", "Failed to get post", err)
		return models.Post{}, err
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM posts WHERE post_id = ?`, post.ID)
	batch.Query(`DELETE FROM posts_by_author WHERE author_id = ? AND created_at = ? AND post_id = ?`,
		post.AuthorID, post.Created, post.ID)
	batch.Query(`DELETE FROM posts_timeline WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		timelineBucket, post.Created, post.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}
	return nil
}

func (s *Store) ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, body, created_at
		FROM posts_by_author WHERE author_id = ? LIMIT ?`,
		authorID, limit,
	).WithContext(ctx).Iter()

	var res []models.Post
	var pid, body string
	var created time.Time
	for iter.Scan(&pid, &body, &created) {
		res = append(res, models.Post{ID: pid, AuthorID: authorID, Body: body, Created: created})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list posts by author", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM posts_by_author WHERE author_id = ?`, authorID)
}

func (s *Store) ListAllPosts(ctx context.Context, limit int) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, author_id, body, created_at
		FROM posts_timeline WHERE bucket = ? LIMIT ?`,
		timelineBucket, limit,
	).WithContext(ctx).Iter()

	var res []models.Post
	var pid, aid, body string
	var created time.Time
	for iter.Scan(&pid, &aid, &body, &created) {
		res = append(res, models.Post{ID: pid, AuthorID: aid, Body: body, Created: created})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) CountAllPosts(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM posts_timeline WHERE bucket = ?`, timelineBucket)
}

// GetAuthorStats reads the post count and the newest post time of one author.
func (s *Store) GetAuthorStats(ctx context.Context, authorID string) (models.AuthorStats, error) {
	stats := models.AuthorStats{AuthorID: authorID}

	n, err := s.CountPostsByAuthor(ctx, authorID)
	if err != nil {
		return stats, err
	}
	stats.PostCount = n
	if n == 0 {
		return stats, nil
	}

	err = s.Session.Query(
		`SELECT created_at FROM posts_by_author WHERE author_id = ? LIMIT 1`,
		authorID,
	).WithContext(ctx).Scan(&stats.LatestPost)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return stats, err
	}
	return stats, nil
}

// --- Like operations ---

// likes_by_post rows are written and deleted only through lightweight transactions.
const (
	insertLike = `INSERT INTO likes_by_post (post_id, user_id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`
	deleteLike = `DELETE FROM likes_by_post WHERE post_id = ? AND user_id = ? IF EXISTS`
)

// AddLike reports false when the user already liked the post.
func (s *Store) AddLike(ctx context.Context, postID, userID string, at time.Time) (bool, error) {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(insertLike, postID, userID, at).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to add like", err)
		return false, err
	}
	return applied, nil
}

// RemoveLike reports false when there was no like to remove.
func (s *Store) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(deleteLike, postID, userID).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to remove like", err)
		return false, err
	}
	return applied, nil
}

func (s *Store) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	var uid string
	err := s.Session.Query(
		`SELECT user_id FROM likes_by_post WHERE post_id = ? AND user_id = ?`,
		postID, userID,
	).WithContext(ctx).Scan(&uid)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM likes_by_post WHERE post_id = ?`, postID)
}

// DeleteLikes removes every like of postID with one conditional delete per row.
func (s *Store) DeleteLikes(ctx context.Context, postID string) error {
	iter := s.Session.Query(`SELECT user_id FROM likes_by_post WHERE post_id = ?`, postID).WithContext(ctx).Iter()
	var users []string
	var uid string
	for iter.Scan(&uid) {
		users = append(users, uid)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list likes", err)
		return err
	}

	for _, u := range users {
		if _, err := s.RemoveLike(ctx, postID, u); err != nil {
			return err
		}
	}
	return nil
}

// --- Comment operations ---

func (s *Store) AddComment(ctx context.Context, c models.Comment) error {
	if err := s.Session.Query(`
		INSERT INTO comments_by_post (post_id, created_at, comment_id, author_id, body)
		VALUES (?, ?, ?, ?, ?)`,
		c.PostID, c.Created, c.ID, c.AuthorID, c.Body,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add comment", err)
		return err
	}
	return nil
}

func (s *Store) CountComments(ctx context.Context, postID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM comments_by_post WHERE post_id = ?`, postID)
}

func (s *Store) DeleteComments(ctx context.Context, postID string) error {
	if err := s.Session.Query(`DELETE FROM comments_by_post WHERE post_id = ?`, postID).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to delete comments", err)
		return err
	}
	return nil
}
