package store

import (
	"context"
	"errors"
	"time"

	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
	"github.com/hashicorp/go-multierror"
)

// --- Notification operations ---

// CreateNotification writes the notification to every query table in one logged batch.
func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO notifications_by_id
		(notification_id, recipient_id, sender_id, kind, post_id, comment_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.SenderID, string(n.Kind), n.PostID, n.CommentID, n.IsRead, n.Created)
	batch.Query(`
		INSERT INTO notifications_by_recipient
		(recipient_id, created_at, notification_id, sender_id, kind, post_id, comment_id, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.Created, n.ID, n.SenderID, string(n.Kind), n.PostID, n.CommentID, n.IsRead)
	if !n.IsRead {
		batch.Query(`INSERT INTO unread_notifications (recipient_id, created_at, notification_id) VALUES (?, ?, ?)`,
			n.RecipientID, n.Created, n.ID)
	}
	if n.PostID != "" {
		batch.Query(`INSERT INTO notifications_by_post (post_id, notification_id) VALUES (?, ?)`,
			n.PostID, n.ID)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create notification", err)
		return err
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	n := models.Notification{ID: id}
	var kind string
	err := s.Session.Query(`
		SELECT recipient_id, sender_id, kind, post_id, comment_id, is_read, created_at
		FROM notifications_by_id WHERE notification_id = ?`,
		id,
	).WithContext(ctx).Scan(&n.RecipientID, &n.SenderID, &kind, &n.PostID, &n.CommentID, &n.IsRead, &n.Created)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Notification{}, ErrNotFound
		}
		logg.Error("store", "Failed to get notification", err)
		return models.Notification{}, err
	}
	n.Kind = models.Kind(kind)
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	iter := s.Session.Query(`
		SELECT notification_id, created_at, sender_id, kind, post_id, comment_id, is_read
		FROM notifications_by_recipient WHERE recipient_id = ?`,
		recipientID,
	).WithContext(ctx).Iter()

	var res []models.Notification
	for {
		n := models.Notification{RecipientID: recipientID}
		var kind string
		if !iter.Scan(&n.ID, &n.Created, &n.SenderID, &kind, &n.PostID, &n.CommentID, &n.IsRead) {
			break
		}
		if unreadOnly && n.IsRead {
			continue
		}
		n.Kind = models.Kind(kind)
		res = append(res, n)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list notifications", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) ListNotificationsByPost(ctx context.Context, postID string) ([]models.Notification, error) {
	iter := s.Session.Query(
		`SELECT notification_id FROM notifications_by_post WHERE post_id = ?`,
		postID,
	).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list notifications by post", err)
		return nil, err
	}

	res := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.GetNotification(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM unread_notifications WHERE recipient_id = ?`, recipientID)
}

// MarkNotificationRead flips is_read in both tables and drops the unread marker.
func (s *Store) MarkNotificationRead(ctx context.Context, n models.Notification) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	appendMarkRead(batch, n.RecipientID, n.ID, n.Created)
	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to mark notification read", err)
		return err
	}
	return nil
}

type unreadRow struct {
	id      string
	created time.Time
}

// MarkAllNotificationsRead walks the unread table and returns how many rows
// were flipped. A failed row does not stop the rest; failures are returned together.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	iter := s.Session.Query(
		`SELECT created_at, notification_id FROM unread_notifications WHERE recipient_id = ?`,
		recipientID,
	).WithContext(ctx).Iter()

	var pending []unreadRow
	var u unreadRow
	for iter.Scan(&u.created, &u.id) {
		pending = append(pending, u)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list unread notifications", err)
		return 0, err
	}

	return markEach(pending, func(u unreadRow) error {
		batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		appendMarkRead(batch, recipientID, u.id, u.created)
		return s.Session.ExecuteBatch(batch)
	})
}

// markEach applies mark to every row and counts the successes.
func markEach(rows []unreadRow, mark func(unreadRow) error) (int, error) {
	var errs *multierror.Error
	flipped := 0
	for _, r := range rows {
		if err := mark(r); err != nil {
			logg.Error("store", "Failed to mark notification read", err)
			errs = multierror.Append(errs, err)
			continue
		}
		flipped++
	}
	return flipped, errs.ErrorOrNil()
}

func appendMarkRead(batch *gocql.Batch, recipientID, id string, created time.Time) {
	batch.Query(`UPDATE notifications_by_id SET is_read = true WHERE notification_id = ?`, id)
	batch.Query(`UPDATE notifications_by_recipient SET is_read = true
		WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
		recipientID, created, id)
	batch.Query(`DELETE FROM unread_notifications
		WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
		recipientID, created, id)
}

func (s *Store) DeleteNotification(ctx context.Context, n models.Notification) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM notifications_by_id WHERE notification_id = ?`, n.ID)
	batch.Query(`DELETE FROM notifications_by_recipient
		WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
		n.RecipientID, n.Created, n.ID)
	batch.Query(`DELETE FROM unread_notifications
		WHERE recipient_id = ? AND created_at = ? AND notification_id = ?`,
		n.RecipientID, n.Created, n.ID)
	if n.PostID != "" {
		batch.Query(`DELETE FROM notifications_by_post WHERE post_id = ? AND notification_id = ?`,
			n.PostID, n.ID)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete notification", err)
		return err
	}
	return nil
}
