package social

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

const defaultSuggestionLimit = 5

// FeedAssembler builds post feeds from the follow graph. It reads the graph
// and the content store only; it never creates notifications.
type FeedAssembler struct {
	follows  store.FollowStore
	content  store.ContentStore
	users    store.UserStore
	renderer *Renderer
	limits   PageLimits
	workers  int
}

func NewFeedAssembler(follows store.FollowStore, content store.ContentStore, users store.UserStore, opts ...Option) *FeedAssembler {
	s := apply(append([]Option{WithPageLimits(10, 0)}, opts...))
	return &FeedAssembler{
		follows:  follows,
		content:  content,
		users:    users,
		renderer: s.renderer,
		limits:   s.limits,
		workers:  s.workers,
	}
}

// FeedEntry is a post annotated for one viewer.
type FeedEntry struct {
	models.Post
	AuthorUsername string `json:"author_username"`
	LikesCount     int    `json:"likes_count"`
	CommentsCount  int    `json:"comments_count"`
	IsLiked        bool   `json:"is_liked"`
}

type FeedPage struct {
	Listing[FeedEntry]
	FollowingCount int    `json:"following_count"`
	Suggestion     bool   `json:"suggestion"`
	SuggestionText string `json:"suggestion_text,omitempty"`
}

type Suggestion struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	PostCount    int       `json:"post_count"`
	LatestPostAt time.Time `json:"latest_post_at"`
}

func newestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Created.Equal(posts[j].Created) {
			return posts[i].Created.After(posts[j].Created)
		}
		return posts[i].ID > posts[j].ID
	})
}

// following returns the ids userID follows. The count is read first so a
// user following nobody costs a single query.
func (f *FeedAssembler) following(ctx context.Context, userID string) ([]string, error) {
	n, err := f.follows.CountFollowing(ctx, userID)
	if err != nil {
		return nil, storeErr("count following", err)
	}
	if n == 0 {
		return nil, nil
	}
	edges, err := f.follows.ListFollowing(ctx, userID, n)
	if err != nil {
		return nil, storeErr("list following", err)
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FolloweeID)
	}
	return ids, nil
}

// HomeFeed returns posts by the users userID follows, newest first. With an
// empty following set it returns an empty page flagged as a suggestion and
// does not touch the content store.
func (f *FeedAssembler) HomeFeed(ctx context.Context, userID string, page, pageSize int) (res FeedPage, err error) {
	ctx, span := tracer.Start(ctx, "FeedAssembler.HomeFeed")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(userID) == "" {
		return FeedPage{}, validationErr("user is required")
	}
	page, size, err := f.limits.normalize(page, pageSize)
	if err != nil {
		return FeedPage{}, err
	}

	authors, err := f.following(ctx, userID)
	if err != nil {
		return FeedPage{}, err
	}
	span.SetAttributes(attribute.Int("feed.following", len(authors)))
	if len(authors) == 0 {
		return FeedPage{
			Listing:        newPage[FeedEntry](nil, 0, page, size),
			Suggestion:     true,
			SuggestionText: f.renderer.FeedSuggestion(),
		}, nil
	}

	type authorPosts struct {
		posts []models.Post
		count int
	}
	// each author contributes at most page*size posts to the merged window
	p := pool.NewWithResults[authorPosts]().WithContext(ctx).WithMaxGoroutines(f.workers).WithCancelOnError()
	for _, author := range authors {
		p.Go(func(ctx context.Context) (authorPosts, error) {
			posts, err := f.content.ListPostsByAuthor(ctx, author, page*size)
			if err != nil {
				return authorPosts{}, storeErr("list posts by author", err)
			}
			count, err := f.content.CountPostsByAuthor(ctx, author)
			if err != nil {
				return authorPosts{}, storeErr("count posts by author", err)
			}
			return authorPosts{posts: posts, count: count}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return FeedPage{}, err
	}

	var merged []models.Post
	total := 0
	for _, r := range results {
		merged = append(merged, r.posts...)
		total += r.count
	}
	newestFirst(merged)

	entries, err := f.annotate(ctx, window(merged, page, size), userID)
	if err != nil {
		return FeedPage{}, err
	}
	return FeedPage{
		Listing:        newPage(entries, total, page, size),
		FollowingCount: len(authors),
	}, nil
}

// ExploreFeed returns every post newest first. viewerID may be empty, in
// which case no post is marked as liked.
func (f *FeedAssembler) ExploreFeed(ctx context.Context, viewerID string, page, pageSize int) (res FeedPage, err error) {
	ctx, span := tracer.Start(ctx, "FeedAssembler.ExploreFeed")
	defer func() { endSpan(span, err) }()

	page, size, err := f.limits.normalize(page, pageSize)
	if err != nil {
		return FeedPage{}, err
	}
	total, err := f.content.CountAllPosts(ctx)
	if err != nil {
		return FeedPage{}, storeErr("count posts", err)
	}
	posts, err := f.content.ListAllPosts(ctx, page*size)
	if err != nil {
		return FeedPage{}, storeErr("list posts", err)
	}

	entries, err := f.annotate(ctx, window(posts, page, size), viewerID)
	if err != nil {
		return FeedPage{}, err
	}
	return FeedPage{Listing: newPage(entries, total, page, size)}, nil
}

// annotate fills counts, like state and author name for each post concurrently.
func (f *FeedAssembler) annotate(ctx context.Context, posts []models.Post, viewerID string) ([]FeedEntry, error) {
	entries := make([]FeedEntry, len(posts))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(f.workers).WithCancelOnError()
	for i, post := range posts {
		p.Go(func(ctx context.Context) error {
			e := FeedEntry{Post: post}
			var err error
			if e.LikesCount, err = f.content.CountLikes(ctx, post.ID); err != nil {
				return storeErr("count likes", err)
			}
			if e.CommentsCount, err = f.content.CountComments(ctx, post.ID); err != nil {
				return storeErr("count comments", err)
			}
			if viewerID != "" {
				if e.IsLiked, err = f.content.HasLiked(ctx, post.ID, viewerID); err != nil {
					return storeErr("check like", err)
				}
			}
			u, err := f.users.GetUser(ctx, post.AuthorID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return storeErr("get author", err)
			default:
				e.AuthorUsername = u.Username
			}
			entries[i] = e
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SuggestedUsers ranks users that userID does not follow by post count, then
// by most recent post. Users without posts are left out.
func (f *FeedAssembler) SuggestedUsers(ctx context.Context, userID string, limit int) ([]Suggestion, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationErr("user is required")
	}
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	if f.limits.Max > 0 && limit > f.limits.Max {
		limit = f.limits.Max
	}

	followed, err := f.following(ctx, userID)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(followed)+1)
	skip[userID] = true
	for _, id := range followed {
		skip[id] = true
	}

	users, err := f.users.ListUsers(ctx)
	if err != nil {
		return nil, storeErr("list users", err)
	}

	var (
		mu  sync.Mutex
		out []Suggestion
	)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(f.workers).WithCancelOnError()
	for _, u := range users {
		if skip[u.ID] {
			continue
		}
		p.Go(func(ctx context.Context) error {
			stats, err := f.content.GetAuthorStats(ctx, u.ID)
			if err != nil {
				return storeErr("author stats", err)
			}
			if stats.PostCount == 0 {
				return nil
			}
			mu.Lock()
			out = append(out, Suggestion{
				UserID:       u.ID,
				Username:     u.Username,
				PostCount:    stats.PostCount,
				LatestPostAt: stats.LatestPost,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PostCount != out[j].PostCount {
			return out[i].PostCount > out[j].PostCount
		}
		if !out[i].LatestPostAt.Equal(out[j].LatestPostAt) {
			return out[i].LatestPostAt.After(out[j].LatestPostAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Suggestion{}
	}
	return out, nil
}
