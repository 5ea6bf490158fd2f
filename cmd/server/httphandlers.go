package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"example.com/socialgraph/internal/middleware"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/social"
)

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

// writeError maps the social error kinds to status codes. Store failures are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, module string, err error) {
	switch {
	case errors.Is(err, social.ErrValidation), errors.Is(err, social.ErrSelfReference):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, social.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, social.ErrDuplicateRelationship):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logg.Error(module, "Request failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, module string, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logg.Info(module, "Invalid request body: "+err.Error())
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// currentUser returns the authenticated user or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request, module string) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// intQuery reads an optional integer query parameter; absent means 0.
func intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, name+" must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func paging(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	if page, ok = intQuery(w, r, "page"); !ok {
		return 0, 0, false
	}
	if limit, ok = intQuery(w, r, "limit"); !ok {
		return 0, 0, false
	}
	return page, limit, true
}

// --- Users ---

// createUserHandler handles POST requests to create a new user.
// Expects JSON body: {"username": "example"}
// Returns JSON response: {"user_id": <id>, "token": <jwt>}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, "http/users", &body) {
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	if len(body.Username) == 0 || len(body.Username) > 50 {
		logg.Info("http/users", "Invalid username length")
		http.Error(w, "username must be 1-50 characters", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	userID, err := s.users.GetUserIDByUsername(ctx, body.Username)
	if err != nil {
		logg.Error("http/users", "Failed to query existing username", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if userID == "" {
		userID, err = s.users.CreateUser(ctx, body.Username)
		if err != nil {
			logg.Error("http/users", "Failed to create user", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		logg.Info("http/users", "User created successfully with user_id="+userID)
	} else {
		logg.Info("http/users", "User already exists, returning existing user_id="+userID)
	}

	token, err := middleware.IssueToken(userID)
	if err != nil {
		logg.Error("http/users", "Failed to generate token", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"token":   token,
	})
}

// --- Relationships ---

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/follow")
	if !ok {
		return
	}
	followee := r.PathValue("userID")

	f, err := s.relationships.Follow(r.Context(), userID, followee)
	if err != nil {
		writeError(w, "http/follow", err)
		return
	}
	logg.Info("http/follow", "User "+userID+" followed "+followee)
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/follow")
	if !ok {
		return
	}
	if err := s.relationships.Unfollow(r.Context(), userID, r.PathValue("userID")); err != nil {
		writeError(w, "http/follow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) followStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/follow")
	if !ok {
		return
	}
	following, err := s.relationships.IsFollowing(r.Context(), userID, r.PathValue("userID"))
	if err != nil {
		writeError(w, "http/follow", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_following": following})
}

// followersHandler lists followers of the path user. The viewer, when
// authenticated, gets is_following flags relative to themselves.
func (s *Server) followersHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	viewer, _ := middleware.UserIDFromContext(r.Context())

	res, err := s.relationships.ListFollowers(r.Context(), r.PathValue("userID"), viewer, page, limit)
	if err != nil {
		writeError(w, "http/followers", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) followingHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r, "http/following")
	if !ok {
		return
	}
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}

	res, err := s.relationships.ListFollowing(r.Context(), r.PathValue("userID"), viewer, page, limit)
	if err != nil {
		writeError(w, "http/following", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.relationships.CountStats(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, "http/stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Notifications ---

// listNotificationsHandler serves ?page&limit&unreadOnly&kind for the caller.
func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/notifications")
	if !ok {
		return
	}
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	unreadOnly := false
	if raw := q.Get("unreadOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "unreadOnly must be a boolean", http.StatusBadRequest)
			return
		}
		unreadOnly = v
	}

	res, err := s.notifications.ListForUser(r.Context(), social.ListQuery{
		Recipient:  userID,
		Page:       page,
		PageSize:   limit,
		UnreadOnly: unreadOnly,
		Kind:       models.Kind(q.Get("kind")),
	})
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) unreadCountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/notifications")
	if !ok {
		return
	}
	n, err := s.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/notifications")
	if !ok {
		return
	}
	n, err := s.notifications.MarkRead(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) markAllReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/notifications")
	if !ok {
		return
	}
	n, err := s.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) deleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/notifications")
	if !ok {
		return
	}
	if err := s.notifications.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, "http/notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Feeds ---

// homeFeedHandler retrieves the caller's feed.
// Query parameters: ?page=1&limit=10
func (s *Server) homeFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/feed")
	if !ok {
		return
	}
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}

	feed, err := s.feed.HomeFeed(r.Context(), userID, page, limit)
	if err != nil {
		writeError(w, "http/feed", err)
		return
	}
	logg.Debug("http/feed", "Feed retrieved for user_id="+userID+" page="+strconv.Itoa(feed.Page))
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) exploreFeedHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	viewer, _ := middleware.UserIDFromContext(r.Context())

	feed, err := s.feed.ExploreFeed(r.Context(), viewer, page, limit)
	if err != nil {
		writeError(w, "http/feed", err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) suggestionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/feed")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	users, err := s.feed.SuggestedUsers(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "http/feed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// --- Posts ---

// createPostHandler stores a post for the caller.
// Expects JSON body: {"body": "post content"}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/posts")
	if !ok {
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if !decodeBody(w, r, "http/posts", &body) {
		return
	}

	post, err := s.interactions.CreatePost(r.Context(), userID, body.Body)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	logg.Info("http/posts", "Post created successfully by user_id="+userID)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/posts")
	if !ok {
		return
	}
	if err := s.interactions.DeletePost(r.Context(), r.PathValue("postID"), userID); err != nil {
		writeError(w, "http/posts", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/likes")
	if !ok {
		return
	}
	state, err := s.interactions.ToggleLike(r.Context(), r.PathValue("postID"), userID)
	if err != nil {
		writeError(w, "http/likes", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// addCommentHandler expects JSON body: {"body": "comment"}
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, "http/comments")
	if !ok {
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if !decodeBody(w, r, "http/comments", &body) {
		return
	}

	c, err := s.interactions.AddComment(r.Context(), r.PathValue("postID"), userID, body.Body)
	if err != nil {
		writeError(w, "http/comments", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
