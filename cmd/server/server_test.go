package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appkafka "example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/social"
	"example.com/socialgraph/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

//
// --- Helpers ---
//

// generate JWT token for test user
func makeTestJWT(userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return tokenStr
}

// create HTTP request with JWT token
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

//
// --- Setup test server ---
//

type testEnv struct {
	server *Server
	store  *store.MockStore
	kafka  *appkafka.MockKafka
	ts     *httptest.Server
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{}
	s := New(mockStore, mockStore, appkafka.NewNotificationPublisher(mockKafka), Options{
		DefaultPageSize: 20,
		FeedPageSize:    10,
		MaxPageSize:     100,
		Locale:          "en",
	})

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{server: s, store: mockStore, kafka: mockKafka, ts: ts}
}

func (e *testEnv) user(t *testing.T, name string) (string, string) {
	t.Helper()
	id, err := e.store.CreateUser(t.Context(), name)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id, makeTestJWT(id)
}

//
// --- Tests ---
//

// create a new user, twice
func TestCreateUser(t *testing.T) {
	env := setupTestServer(t)

	first := decode[map[string]string](t, sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users",
		map[string]any{"username": "almaz"}, "", http.StatusOK))
	if first["user_id"] == "" || first["token"] == "" {
		t.Fatalf("expected user id and token, got %v", first)
	}

	again := decode[map[string]string](t, sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users",
		map[string]any{"username": "almaz"}, "", http.StatusOK))
	if again["user_id"] != first["user_id"] {
		t.Fatalf("existing username should return the same id, got %v and %v", first, again)
	}

	// the issued token works against a protected route
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications/unread-count", nil, first["token"], http.StatusOK)
}

// invalid JSON for creating user
func TestCreateUser_InvalidInput(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Post(env.ts.URL+"/users", "application/json", bytes.NewBufferString(`{"username":123}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users", map[string]any{"username": "  "}, "", http.StatusBadRequest)
}

func TestFollowRoutes(t *testing.T) {
	env := setupTestServer(t)
	almazID, almazToken := env.user(t, "almaz")
	nurID, nurToken := env.user(t, "nur")

	follow := decode[models.Follow](t, sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusCreated))
	if follow.FollowerID != almazID || follow.FolloweeID != nurID {
		t.Fatalf("unexpected follow: %+v", follow)
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusConflict)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/"+almazID, nil, almazToken, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/ghost", nil, almazToken, http.StatusNotFound)

	status := decode[map[string]bool](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/follows/"+nurID+"/status", nil, almazToken, http.StatusOK))
	if !status["is_following"] {
		t.Fatal("expected is_following=true")
	}

	followers := decode[social.Listing[social.FollowEntry]](t, sendJSONRequest(t, http.MethodGet,
		env.ts.URL+"/users/"+nurID+"/followers", nil, "", http.StatusOK))
	if followers.Total != 1 || followers.Items[0].Username != "almaz" || followers.Items[0].IsFollowing {
		t.Fatalf("unexpected anonymous followers page: %+v", followers)
	}

	stats := decode[social.FollowStats](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/"+nurID+"/stats", nil, nurToken, http.StatusOK))
	if stats.Followers != 1 || stats.Following != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	unread := decode[map[string]int](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications/unread-count", nil, nurToken, http.StatusOK))
	if unread["unread_count"] != 1 {
		t.Fatalf("expected 1 unread, got %v", unread)
	}

	written := env.kafka.Written()
	if len(written) != 1 || string(written[0].Key) != nurID {
		t.Fatalf("expected one event keyed by recipient, got %+v", written)
	}
	ev, err := appkafka.DecodeNotificationEvent(written[0].Value)
	if err != nil || ev.Notification.Kind != models.KindFollow {
		t.Fatalf("unexpected event %+v, %v", ev, err)
	}

	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusNoContent)
	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusNotFound)
}

// full flow: follow -> post -> feed -> like -> notifications
func TestFollowPostFeedFlow(t *testing.T) {
	env := setupTestServer(t)
	_, almazToken := env.user(t, "almaz")
	nurID, nurToken := env.user(t, "nur")

	empty := decode[social.FeedPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, almazToken, http.StatusOK))
	if !empty.Suggestion || len(empty.Items) != 0 {
		t.Fatalf("expected empty suggestion feed, got %+v", empty)
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusCreated)
	post := decode[models.Post](t, sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts",
		map[string]any{"body": "Hello from Nur!"}, nurToken, http.StatusCreated))

	feed := decode[social.FeedPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed?page=1&limit=5", nil, almazToken, http.StatusOK))
	if feed.Total != 1 || feed.Items[0].Body != "Hello from Nur!" || feed.Items[0].AuthorUsername != "nur" {
		t.Fatalf("expected post in feed, got %+v", feed)
	}

	like := decode[social.LikeState](t, sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/"+post.ID+"/like", nil, almazToken, http.StatusOK))
	if !like.Liked || like.LikesCount != 1 {
		t.Fatalf("unexpected like state: %+v", like)
	}
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/"+post.ID+"/comments",
		map[string]any{"body": "welcome"}, almazToken, http.StatusCreated)

	list := decode[social.NotificationPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?limit=2", nil, nurToken, http.StatusOK))
	if list.Total != 3 || list.UnreadCount != 3 || list.TotalPages != 2 || len(list.Items) != 2 {
		t.Fatalf("unexpected notifications page: %+v", list)
	}
	if list.Items[0].Kind != models.KindComment || list.Items[0].Message != "almaz commented on your post." {
		t.Fatalf("unexpected newest notification: %+v", list.Items[0])
	}

	likes := decode[social.NotificationPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?kind=like&unreadOnly=true", nil, nurToken, http.StatusOK))
	if likes.Total != 1 || likes.Items[0].PostID != post.ID {
		t.Fatalf("unexpected like filter: %+v", likes)
	}

	read := decode[models.Notification](t, sendJSONRequest(t, http.MethodPut, env.ts.URL+"/notifications/"+likes.Items[0].ID+"/read", nil, nurToken, http.StatusOK))
	if !read.IsRead {
		t.Fatal("expected notification marked read")
	}
	sendJSONRequest(t, http.MethodPut, env.ts.URL+"/notifications/"+likes.Items[0].ID+"/read", nil, almazToken, http.StatusNotFound)

	all := decode[map[string]int](t, sendJSONRequest(t, http.MethodPut, env.ts.URL+"/notifications/read-all", nil, nurToken, http.StatusOK))
	if all["updated"] != 2 {
		t.Fatalf("expected 2 updated, got %v", all)
	}

	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/notifications/"+likes.Items[0].ID, nil, nurToken, http.StatusNoContent)
	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/posts/"+post.ID, nil, almazToken, http.StatusNotFound)
	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/posts/"+post.ID, nil, nurToken, http.StatusNoContent)

	after := decode[social.NotificationPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications", nil, nurToken, http.StatusOK))
	if after.Total != 1 || after.Items[0].Kind != models.KindFollow {
		t.Fatalf("only the follow notification should remain, got %+v", after.Items)
	}
}

func TestExploreAndSuggestions(t *testing.T) {
	env := setupTestServer(t)
	_, almazToken := env.user(t, "almaz")
	_, nurToken := env.user(t, "nur")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": "one"}, nurToken, http.StatusCreated)

	explore := decode[social.FeedPage](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed/explore", nil, "", http.StatusOK))
	if explore.Total != 1 || explore.Items[0].IsLiked {
		t.Fatalf("unexpected explore page: %+v", explore)
	}

	sugg := decode[map[string][]social.Suggestion](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed/suggestions?limit=3", nil, almazToken, http.StatusOK))
	if len(sugg["users"]) != 1 || sugg["users"][0].Username != "nur" {
		t.Fatalf("unexpected suggestions: %+v", sugg)
	}
}

func TestRequestValidation(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "almaz")

	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications", nil, "", http.StatusUnauthorized)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?limit=abc", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?limit=1000", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?unreadOnly=maybe", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?kind=poke", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed/explore", nil, "garbage", http.StatusUnauthorized)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed/explore?page=4611686018427387904&limit=4", nil, "", http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed?page=9223372036854775807", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications?page=4611686018427387904&limit=4", nil, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts", map[string]any{"body": ""}, token, http.StatusBadRequest)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/missing/like", nil, token, http.StatusNotFound)
}

// store failures surface as 500 without leaking details
func TestStoreFailure(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.user(t, "almaz")
	env.store.FailOn["CountUnread"] = true

	resp := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications/unread-count", nil, token, http.StatusInternalServerError)
	b, _ := io.ReadAll(resp.Body)
	if string(bytes.TrimSpace(b)) != "internal error" {
		t.Fatalf("unexpected body %q", b)
	}
}

// Kafka write error does not fail the action
func TestKafkaWriteError(t *testing.T) {
	env := setupTestServer(t)
	env.kafka.ShouldFail = true
	_, almazToken := env.user(t, "almaz")
	nurID, nurToken := env.user(t, "nur")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follows/"+nurID, nil, almazToken, http.StatusCreated)
	unread := decode[map[string]int](t, sendJSONRequest(t, http.MethodGet, env.ts.URL+"/notifications/unread-count", nil, nurToken, http.StatusOK))
	if unread["unread_count"] != 1 {
		t.Fatalf("notification should persist without the event, got %v", unread)
	}
}
