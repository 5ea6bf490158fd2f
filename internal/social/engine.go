package social

import (
	"context"
	"errors"
	"strings"
	"time"

	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	logg   = logger.New()
	tracer = otel.Tracer("example.com/socialgraph/internal/social")
)

// NotificationPublisher announces a persisted notification to other processes.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// ActionRecorder is the single entry point for turning actions into notifications.
type ActionRecorder interface {
	RecordAction(ctx context.Context, action Action) (*models.Notification, error)
}

// NotificationEngine owns the notification write path and the recipient inbox.
type NotificationEngine struct {
	notifications store.NotificationStore
	users         store.UserStore
	dedup         store.DedupWindow
	publisher     NotificationPublisher
	renderer      *Renderer
	window        time.Duration
	limits        PageLimits
	clock         func() time.Time
	newID         func() string
}

func NewNotificationEngine(notifications store.NotificationStore, users store.UserStore, dedup store.DedupWindow, opts ...Option) *NotificationEngine {
	s := apply(opts)
	return &NotificationEngine{
		notifications: notifications,
		users:         users,
		dedup:         dedup,
		publisher:     s.publisher,
		renderer:      s.renderer,
		window:        s.window,
		limits:        s.limits,
		clock:         s.clock,
		newID:         s.newID,
	}
}

// UserRef is the sender as shown to the recipient.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type NotificationView struct {
	ID        string      `json:"id"`
	Kind      models.Kind `json:"kind"`
	Message   string      `json:"message"`
	Sender    UserRef     `json:"sender"`
	PostID    string      `json:"post_id,omitempty"`
	CommentID string      `json:"comment_id,omitempty"`
	IsRead    bool        `json:"is_read"`
	CreatedAt time.Time   `json:"created_at"`
}

type NotificationPage struct {
	Listing[NotificationView]
	UnreadCount int `json:"unread_count"`
}

type ListQuery struct {
	Recipient  string
	Page       int
	PageSize   int
	UnreadOnly bool
	Kind       models.Kind // empty means every kind
}

func dedupKey(n models.Notification) store.DedupKey {
	return store.DedupKey{
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Kind:        n.Kind,
		PostID:      n.PostID,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordAction persists at most one notification for the action. It returns
// nil without error when the actor is the recipient or when the same
// (recipient, sender, kind, post) already notified inside the dedup window.
func (e *NotificationEngine) RecordAction(ctx context.Context, action Action) (n *models.Notification, err error) {
	if action == nil {
		return nil, validationErr("action is required")
	}
	ctx, span := tracer.Start(ctx, "NotificationEngine.RecordAction",
		trace.WithAttributes(attribute.String("notification.kind", string(action.Kind()))))
	defer func() { endSpan(span, err) }()

	if err := action.validate(); err != nil {
		return nil, err
	}
	if action.Actor() == action.Recipient() {
		span.SetAttributes(attribute.String("notification.suppressed", "self"))
		return nil, nil
	}

	postID, commentID := action.subjects()
	created := models.Notification{
		ID:          e.newID(),
		RecipientID: action.Recipient(),
		SenderID:    action.Actor(),
		Kind:        action.Kind(),
		PostID:      postID,
		CommentID:   commentID,
		Created:     e.clock().UTC(),
	}

	key := dedupKey(created)
	claimed, err := e.dedup.Claim(ctx, key, created.ID, e.window)
	if err != nil {
		return nil, storeErr("claim dedup window", err)
	}
	if !claimed {
		span.SetAttributes(attribute.String("notification.suppressed", "duplicate"))
		logg.Debug("social/notifications", "Duplicate "+string(created.Kind)+" notification suppressed")
		return nil, nil
	}

	if err := e.notifications.CreateNotification(ctx, created); err != nil {
		// the marker must not outlive a notification that was never written
		if rerr := e.dedup.Release(context.WithoutCancel(ctx), key, created.ID); rerr != nil {
			logg.Error("social/notifications", "Failed to release dedup marker", rerr)
		}
		return nil, storeErr("create notification", err)
	}

	if e.publisher != nil {
		if perr := e.publisher.PublishNotification(ctx, created); perr != nil {
			logg.Error("social/notifications", "Failed to publish notification event", perr)
		}
	}
	return &created, nil
}

// ListForUser returns the recipient's notifications newest first, with
// messages rendered from the sender's current username.
func (e *NotificationEngine) ListForUser(ctx context.Context, q ListQuery) (res NotificationPage, err error) {
	ctx, span := tracer.Start(ctx, "NotificationEngine.ListForUser")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(q.Recipient) == "" {
		return NotificationPage{}, validationErr("recipient is required")
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return NotificationPage{}, validationErr("unknown notification kind %q", q.Kind)
	}
	page, size, err := e.limits.normalize(q.Page, q.PageSize)
	if err != nil {
		return NotificationPage{}, err
	}

	all, err := e.notifications.ListNotifications(ctx, q.Recipient, q.UnreadOnly)
	if err != nil {
		return NotificationPage{}, storeErr("list notifications", err)
	}
	if q.Kind != "" {
		filtered := all[:0:0]
		for _, n := range all {
			if n.Kind == q.Kind {
				filtered = append(filtered, n)
			}
		}
		all = filtered
	}

	unread, err := e.notifications.CountUnread(ctx, q.Recipient)
	if err != nil {
		return NotificationPage{}, storeErr("count unread notifications", err)
	}

	views, err := e.render(ctx, window(all, page, size))
	if err != nil {
		return NotificationPage{}, err
	}
	return NotificationPage{
		Listing:     newPage(views, len(all), page, size),
		UnreadCount: unread,
	}, nil
}

func (e *NotificationEngine) render(ctx context.Context, items []models.Notification) ([]NotificationView, error) {
	names := make(map[string]string)
	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		name, ok := names[n.SenderID]
		if !ok {
			u, err := e.users.GetUser(ctx, n.SenderID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return nil, storeErr("get sender", err)
			default:
				name = u.Username
			}
			names[n.SenderID] = name
		}
		views = append(views, NotificationView{
			ID:        n.ID,
			Kind:      n.Kind,
			Message:   e.renderer.Message(n.Kind, name),
			Sender:    UserRef{ID: n.SenderID, Username: name},
			PostID:    n.PostID,
			CommentID: n.CommentID,
			IsRead:    n.IsRead,
			CreatedAt: n.Created,
		})
	}
	return views, nil
}

// owned loads a notification and hides it unless it belongs to recipient.
func (e *NotificationEngine) owned(ctx context.Context, id, recipient string) (models.Notification, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(recipient) == "" {
		return models.Notification{}, validationErr("notification id and recipient are required")
	}
	n, err := e.notifications.GetNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Notification{}, notFoundErr("notification")
	}
	if err != nil {
		return models.Notification{}, storeErr("get notification", err)
	}
	if n.RecipientID != recipient {
		return models.Notification{}, notFoundErr("notification")
	}
	return n, nil
}

// MarkRead flips isRead for one owned notification. Marking twice is a no-op.
func (e *NotificationEngine) MarkRead(ctx context.Context, id, recipient string) (models.Notification, error) {
	n, err := e.owned(ctx, id, recipient)
	if err != nil {
		return models.Notification{}, err
	}
	if n.IsRead {
		return n, nil
	}
	if err := e.notifications.MarkNotificationRead(ctx, n); err != nil {
		return models.Notification{}, storeErr("mark notification read", err)
	}
	n.IsRead = true
	return n, nil
}

// MarkAllRead returns how many notifications went from unread to read. On a
// partial failure the count covers the rows that did flip.
func (e *NotificationEngine) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	if strings.TrimSpace(recipient) == "" {
		return 0, validationErr("recipient is required")
	}
	n, err := e.notifications.MarkAllNotificationsRead(ctx, recipient)
	if err != nil {
		return n, storeErr("mark all notifications read", err)
	}
	return n, nil
}

// Delete removes an owned notification and frees its dedup window.
func (e *NotificationEngine) Delete(ctx context.Context, id, recipient string) error {
	n, err := e.owned(ctx, id, recipient)
	if err != nil {
		return err
	}
	if err := e.notifications.DeleteNotification(ctx, n); err != nil {
		return storeErr("delete notification", err)
	}
	if err := e.dedup.Release(ctx, dedupKey(n), n.ID); err != nil {
		logg.Error("social/notifications", "Failed to release dedup marker", err)
	}
	return nil
}

func (e *NotificationEngine) UnreadCount(ctx context.Context, recipient string) (int, error) {
	if strings.TrimSpace(recipient) == "" {
		return 0, validationErr("recipient is required")
	}
	n, err := e.notifications.CountUnread(ctx, recipient)
	if err != nil {
		return 0, storeErr("count unread notifications", err)
	}
	return n, nil
}

// PurgeSubject deletes every notification about postID. It keeps going past
// individual failures and reports them together.
func (e *NotificationEngine) PurgeSubject(ctx context.Context, postID string) (int, error) {
	if strings.TrimSpace(postID) == "" {
		return 0, validationErr("post id is required")
	}
	items, err := e.notifications.ListNotificationsByPost(ctx, postID)
	if err != nil {
		return 0, storeErr("list notifications by post", err)
	}

	var errs *multierror.Error
	deleted := 0
	for _, n := range items {
		if err := e.notifications.DeleteNotification(ctx, n); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		deleted++
		if err := e.dedup.Release(ctx, dedupKey(n), n.ID); err != nil {
			logg.Error("social/notifications", "Failed to release dedup marker", err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return deleted, storeErr("purge notifications", err)
	}
	return deleted, nil
}
