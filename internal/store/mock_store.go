package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/socialgraph/internal/models"
)

type followKey struct{ follower, followee string }

type dedupEntry struct {
	notificationID string
	expires        time.Time
}

// MockStore simulates Cassandra operations for testing.
// Uniqueness and TTL behave like the lightweight transactions in Store.
type MockStore struct {
	mu sync.Mutex

	Users         map[string]models.User
	Follows       map[followKey]models.Follow
	Posts         map[string]models.Post
	Likes         map[string]map[string]time.Time
	Comments      map[string][]models.Comment
	Notifications map[string]models.Notification
	Dedup         map[string]dedupEntry

	// Clock drives dedup marker expiry; defaults to time.Now.
	Clock func() time.Time

	ShouldFail bool            // flag to simulate failures
	FailOn     map[string]bool // fail only the named methods

	// PostQueries counts reads that touch posts, likes or comments.
	PostQueries int

	userCounter int
	seq         int
	order       map[string]int
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:         make(map[string]models.User),
		Follows:       make(map[followKey]models.Follow),
		Posts:         make(map[string]models.Post),
		Likes:         make(map[string]map[string]time.Time),
		Comments:      make(map[string][]models.Comment),
		Notifications: make(map[string]models.Notification),
		Dedup:         make(map[string]dedupEntry),
		FailOn:        make(map[string]bool),
		order:         make(map[string]int),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) fail(op string) error {
	if m.ShouldFail || m.FailOn[op] {
		return fmt.Errorf("mock: %s failed", op)
	}
	return nil
}

func (m *MockStore) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// track remembers insertion order so equal timestamps still sort newest first.
func (m *MockStore) track(id string) {
	m.seq++
	m.order[id] = m.seq
}

func (m *MockStore) newer(aID string, aAt time.Time, bID string, bAt time.Time) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return m.order[aID] > m.order[bID]
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// --- Users ---

// CreateUser simulates creating a new user
func (m *MockStore) CreateUser(ctx context.Context, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateUser"); err != nil {
		return "", err
	}
	for id, u := range m.Users {
		if u.Username == username {
			return id, nil
		}
	}
	m.userCounter++
	id := fmt.Sprintf("user_%d", m.userCounter)
	m.Users[id] = models.User{ID: id, Username: username, Created: m.now()}
	return id, nil
}

// GetUserIDByUsername returns the user ID for a given username
func (m *MockStore) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUserIDByUsername"); err != nil {
		return "", err
	}
	for id, u := range m.Users {
		if u.Username == username {
			return id, nil
		}
	}
	return "", nil
}

func (m *MockStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUser"); err != nil {
		return models.User{}, err
	}
	u, ok := m.Users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MockStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListUsers"); err != nil {
		return nil, err
	}
	res := make([]models.User, 0, len(m.Users))
	for _, u := range m.Users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// --- Follows ---

// CreateFollow simulates creating a follow relationship
func (m *MockStore) CreateFollow(ctx context.Context, f models.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateFollow"); err != nil {
		return err
	}
	k := followKey{f.FollowerID, f.FolloweeID}
	if _, ok := m.Follows[k]; ok {
		return ErrAlreadyExists
	}
	m.Follows[k] = f
	m.track("follow:" + f.FollowerID + ":" + f.FolloweeID)
	return nil
}

func (m *MockStore) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteFollow"); err != nil {
		return err
	}
	k := followKey{followerID, followeeID}
	if _, ok := m.Follows[k]; !ok {
		return ErrNotFound
	}
	delete(m.Follows, k)
	return nil
}

func (m *MockStore) GetFollow(ctx context.Context, followerID, followeeID string) (models.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetFollow"); err != nil {
		return models.Follow{}, err
	}
	f, ok := m.Follows[followKey{followerID, followeeID}]
	if !ok {
		return models.Follow{}, ErrNotFound
	}
	return f, nil
}

func (m *MockStore) sortedFollows(match func(models.Follow) bool) []models.Follow {
	var res []models.Follow
	for _, f := range m.Follows {
		if match(f) {
			res = append(res, f)
		}
	}
	key := func(f models.Follow) string { return "follow:" + f.FollowerID + ":" + f.FolloweeID }
	sort.Slice(res, func(i, j int) bool {
		return m.newer(key(res[i]), res[i].Created, key(res[j]), res[j].Created)
	})
	return res
}

// ListFollowers returns all followers of a given user
func (m *MockStore) ListFollowers(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListFollowers"); err != nil {
		return nil, err
	}
	res := m.sortedFollows(func(f models.Follow) bool { return f.FolloweeID == userID })
	return limitSlice(res, limit), nil
}

func (m *MockStore) ListFollowing(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListFollowing"); err != nil {
		return nil, err
	}
	res := m.sortedFollows(func(f models.Follow) bool { return f.FollowerID == userID })
	return limitSlice(res, limit), nil
}

func (m *MockStore) CountFollowers(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountFollowers"); err != nil {
		return 0, err
	}
	return len(m.sortedFollows(func(f models.Follow) bool { return f.FolloweeID == userID })), nil
}

func (m *MockStore) CountFollowing(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountFollowing"); err != nil {
		return 0, err
	}
	return len(m.sortedFollows(func(f models.Follow) bool { return f.FollowerID == userID })), nil
}

// --- Notifications ---

func (m *MockStore) CreateNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateNotification"); err != nil {
		return err
	}
	m.Notifications[n.ID] = n
	m.track(n.ID)
	return nil
}

func (m *MockStore) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetNotification"); err != nil {
		return models.Notification{}, err
	}
	n, ok := m.Notifications[id]
	if !ok {
		return models.Notification{}, ErrNotFound
	}
	return n, nil
}

func (m *MockStore) sortedNotifications(match func(models.Notification) bool) []models.Notification {
	var res []models.Notification
	for _, n := range m.Notifications {
		if match(n) {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return m.newer(res[i].ID, res[i].Created, res[j].ID, res[j].Created)
	})
	return res
}

func (m *MockStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListNotifications"); err != nil {
		return nil, err
	}
	return m.sortedNotifications(func(n models.Notification) bool {
		return n.RecipientID == recipientID && (!unreadOnly || !n.IsRead)
	}), nil
}

func (m *MockStore) ListNotificationsByPost(ctx context.Context, postID string) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListNotificationsByPost"); err != nil {
		return nil, err
	}
	return m.sortedNotifications(func(n models.Notification) bool { return n.PostID == postID }), nil
}

func (m *MockStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountUnread"); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range m.Notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) MarkNotificationRead(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkNotificationRead"); err != nil {
		return err
	}
	stored, ok := m.Notifications[n.ID]
	if !ok {
		return ErrNotFound
	}
	stored.IsRead = true
	m.Notifications[n.ID] = stored
	return nil
}

func (m *MockStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkAllNotificationsRead"); err != nil {
		return 0, err
	}
	count := 0
	for id, n := range m.Notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			m.Notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (m *MockStore) DeleteNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteNotification"); err != nil {
		return err
	}
	delete(m.Notifications, n.ID)
	return nil
}

// --- Dedup window ---

func (m *MockStore) Claim(ctx context.Context, key DedupKey, notificationID string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Claim"); err != nil {
		return false, err
	}
	now := m.now()
	if e, ok := m.Dedup[key.String()]; ok && now.Before(e.expires) {
		return false, nil
	}
	m.Dedup[key.String()] = dedupEntry{notificationID: notificationID, expires: now.Add(window)}
	return true, nil
}

func (m *MockStore) Release(ctx context.Context, key DedupKey, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Release"); err != nil {
		return err
	}
	if e, ok := m.Dedup[key.String()]; ok && e.notificationID == notificationID {
		delete(m.Dedup, key.String())
	}
	return nil
}

// --- Posts ---

// AddPost simulates adding a post
func (m *MockStore) AddPost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AddPost"); err != nil {
		return err
	}
	m.Posts[post.ID] = post
	m.track(post.ID)
	return nil
}

func (m *MockStore) GetPost(ctx context.Context, postID string) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetPost"); err != nil {
		return models.Post{}, err
	}
	p, ok := m.Posts[postID]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return p, nil
}

func (m *MockStore) DeletePost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeletePost"); err != nil {
		return err
	}
	delete(m.Posts, post.ID)
	return nil
}

func (m *MockStore) sortedPosts(match func(models.Post) bool) []models.Post {
	var res []models.Post
	for _, p := range m.Posts {
		if match(p) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return m.newer(res[i].ID, res[i].Created, res[j].ID, res[j].Created)
	})
	return res
}

func (m *MockStore) ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("ListPostsByAuthor"); err != nil {
		return nil, err
	}
	res := m.sortedPosts(func(p models.Post) bool { return p.AuthorID == authorID })
	return limitSlice(res, limit), nil
}

func (m *MockStore) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("CountPostsByAuthor"); err != nil {
		return 0, err
	}
	return len(m.sortedPosts(func(p models.Post) bool { return p.AuthorID == authorID })), nil
}

func (m *MockStore) ListAllPosts(ctx context.Context, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("ListAllPosts"); err != nil {
		return nil, err
	}
	res := m.sortedPosts(func(models.Post) bool { return true })
	return limitSlice(res, limit), nil
}

func (m *MockStore) CountAllPosts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("CountAllPosts"); err != nil {
		return 0, err
	}
	return len(m.Posts), nil
}

func (m *MockStore) GetAuthorStats(ctx context.Context, authorID string) (models.AuthorStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	stats := models.AuthorStats{AuthorID: authorID}
	if err := m.fail("GetAuthorStats"); err != nil {
		return stats, err
	}
	posts := m.sortedPosts(func(p models.Post) bool { return p.AuthorID == authorID })
	stats.PostCount = len(posts)
	if len(posts) > 0 {
		stats.LatestPost = posts[0].Created
	}
	return stats, nil
}

// --- Likes ---

func (m *MockStore) AddLike(ctx context.Context, postID, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AddLike"); err != nil {
		return false, err
	}
	if m.Likes[postID] == nil {
		m.Likes[postID] = make(map[string]time.Time)
	}
	if _, ok := m.Likes[postID][userID]; ok {
		return false, nil
	}
	m.Likes[postID][userID] = at
	return true, nil
}

func (m *MockStore) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RemoveLike"); err != nil {
		return false, err
	}
	if _, ok := m.Likes[postID][userID]; !ok {
		return false, nil
	}
	delete(m.Likes[postID], userID)
	return true, nil
}

func (m *MockStore) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("HasLiked"); err != nil {
		return false, err
	}
	_, ok := m.Likes[postID][userID]
	return ok, nil
}

func (m *MockStore) CountLikes(ctx context.Context, postID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("CountLikes"); err != nil {
		return 0, err
	}
	return len(m.Likes[postID]), nil
}

func (m *MockStore) DeleteLikes(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteLikes"); err != nil {
		return err
	}
	delete(m.Likes, postID)
	return nil
}

// --- Comments ---

func (m *MockStore) AddComment(ctx context.Context, c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AddComment"); err != nil {
		return err
	}
	m.Comments[c.PostID] = append(m.Comments[c.PostID], c)
	return nil
}

func (m *MockStore) CountComments(ctx context.Context, postID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostQueries++
	if err := m.fail("CountComments"); err != nil {
		return 0, err
	}
	return len(m.Comments[postID]), nil
}

func (m *MockStore) DeleteComments(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteComments"); err != nil {
		return err
	}
	delete(m.Comments, postID)
	return nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failed")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, username string) (string, error) {
	return "", errMockFail
}

func (m *MockStoreFail) GetUserIDByUsername(ctx context.Context, username string) (string, error) {
	return "", errMockFail
}

func (m *MockStoreFail) GetUser(ctx context.Context, userID string) (models.User, error) {
	return models.User{}, errMockFail
}

func (m *MockStoreFail) ListUsers(ctx context.Context) ([]models.User, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CreateFollow(ctx context.Context, f models.Follow) error {
	return errMockFail
}

func (m *MockStoreFail) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	return errMockFail
}

func (m *MockStoreFail) GetFollow(ctx context.Context, followerID, followeeID string) (models.Follow, error) {
	return models.Follow{}, errMockFail
}

func (m *MockStoreFail) ListFollowers(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) ListFollowing(ctx context.Context, userID string, limit int) ([]models.Follow, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CountFollowers(ctx context.Context, userID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) CountFollowing(ctx context.Context, userID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) CreateNotification(ctx context.Context, n models.Notification) error {
	return errMockFail
}

func (m *MockStoreFail) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	return models.Notification{}, errMockFail
}

func (m *MockStoreFail) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.Notification, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) ListNotificationsByPost(ctx context.Context, postID string) ([]models.Notification, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) MarkNotificationRead(ctx context.Context, n models.Notification) error {
	return errMockFail
}

func (m *MockStoreFail) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) DeleteNotification(ctx context.Context, n models.Notification) error {
	return errMockFail
}

func (m *MockStoreFail) Claim(ctx context.Context, key DedupKey, notificationID string, window time.Duration) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) Release(ctx context.Context, key DedupKey, notificationID string) error {
	return errMockFail
}

func (m *MockStoreFail) AddPost(ctx context.Context, post models.Post) error {
	return errMockFail
}

func (m *MockStoreFail) GetPost(ctx context.Context, postID string) (models.Post, error) {
	return models.Post{}, errMockFail
}

func (m *MockStoreFail) DeletePost(ctx context.Context, post models.Post) error {
	return errMockFail
}

func (m *MockStoreFail) ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]models.Post, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) ListAllPosts(ctx context.Context, limit int) ([]models.Post, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) CountAllPosts(ctx context.Context) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) GetAuthorStats(ctx context.Context, authorID string) (models.AuthorStats, error) {
	return models.AuthorStats{}, errMockFail
}

func (m *MockStoreFail) AddLike(ctx context.Context, postID, userID string, at time.Time) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) CountLikes(ctx context.Context, postID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) DeleteLikes(ctx context.Context, postID string) error {
	return errMockFail
}

func (m *MockStoreFail) AddComment(ctx context.Context, c models.Comment) error {
	return errMockFail
}

func (m *MockStoreFail) CountComments(ctx context.Context, postID string) (int, error) {
	return 0, errMockFail
}

func (m *MockStoreFail) DeleteComments(ctx context.Context, postID string) error {
	return errMockFail
}
