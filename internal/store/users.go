package store

import (
	"context"
	"errors"
	"time"

	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
)

// --- User operations ---

// GetUserIDByUsername returns the existing user_id by username.
// If the user does not exist, it returns empty string without an error.
func (s *Store) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", nil
		}
		logg.Error("store", "Failed to query user by username", err)
		return "", err
	}
	return id, nil
}

// CreateUser creates a new user if the username does not exist.
// Returns the existing user_id if username already exists.
func (s *Store) CreateUser(ctx context.Context, username string) (string, error) {
	existingID, err := s.GetUserIDByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if existingID != "" {
		return existingID, nil
	}

	id := gocql.TimeUUID().String()

	// users_by_username is the uniqueness guard
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return "", err
	}

	if !applied {
		// Another process already created this user
		return s.GetUserIDByUsername(ctx, username)
	}

	err = s.Session.Query(`
		INSERT INTO users (user_id, username, created_at)
		VALUES (?, ?, ?)`,
		id, username, time.Now().UTC(),
	).WithContext(ctx).Exec()
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		return "", err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	u := models.User{ID: userID}
	err := s.Session.Query(
		`SELECT username, created_at FROM users WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Scan(&u.Username, &u.Created)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to get user", err)
		return models.User{}, err
	}
	return u, nil
}

// ListUsers scans the users table. Used only for suggestions.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.Session.Query(`SELECT user_id, username, created_at FROM users`).WithContext(ctx).Iter()

	var res []models.User
	var u models.User
	for iter.Scan(&u.ID, &u.Username, &u.Created) {
		res = append(res, u)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, err
	}
	return res, nil
}
