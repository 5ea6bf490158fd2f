package social

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFollow_Rules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")

	if _, err := f.rel.Follow(ctx, a, a); !errors.Is(err, ErrSelfReference) {
		t.Fatalf("self follow: expected ErrSelfReference, got %v", err)
	}
	if _, err := f.rel.Follow(ctx, a, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown followee: expected ErrNotFound, got %v", err)
	}
	if _, err := f.rel.Follow(ctx, "", b); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty follower: expected ErrValidation, got %v", err)
	}

	edge, err := f.rel.Follow(ctx, a, b)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if edge.FollowerID != a || edge.FolloweeID != b || !edge.Created.Equal(f.clock.Now()) {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if _, err := f.rel.Follow(ctx, a, b); !errors.Is(err, ErrDuplicateRelationship) {
		t.Fatalf("second follow: expected ErrDuplicateRelationship, got %v", err)
	}
	if len(f.st.Follows) != 1 {
		t.Fatalf("expected a single edge, got %d", len(f.st.Follows))
	}
	if f.unread(t, b) != 1 {
		t.Fatal("follow should notify the followee once")
	}
}

func TestFollow_NotificationFailureKeepsEdge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")
	f.st.FailOn["CreateNotification"] = true

	if _, err := f.rel.Follow(ctx, a, b); err != nil {
		t.Fatalf("follow must succeed without its notification: %v", err)
	}
	ok, err := f.rel.IsFollowing(ctx, a, b)
	if err != nil || !ok {
		t.Fatalf("edge should exist, got %v, %v", ok, err)
	}
}

func TestFollow_RefollowInsideWindowIsQuiet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")

	if _, err := f.rel.Follow(ctx, a, b); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := f.rel.Unfollow(ctx, a, b); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	f.clock.Advance(time.Hour)
	if _, err := f.rel.Follow(ctx, a, b); err != nil {
		t.Fatalf("refollow: %v", err)
	}
	if f.unread(t, b) != 1 {
		t.Fatalf("follow/unfollow churn must not spam, got %d unread", f.unread(t, b))
	}
}

func TestUnfollow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")

	if err := f.rel.Unfollow(ctx, a, b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing edge: expected ErrNotFound, got %v", err)
	}
	_, _ = f.rel.Follow(ctx, a, b)
	_, _ = f.rel.Follow(ctx, b, a)

	if err := f.rel.Unfollow(ctx, a, b); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if ok, _ := f.rel.IsFollowing(ctx, a, b); ok {
		t.Fatal("a should no longer follow b")
	}
	if ok, _ := f.rel.IsFollowing(ctx, b, a); !ok {
		t.Fatal("reverse edge must be untouched")
	}
}

func TestIsFollowing_Degenerate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.ShouldFail = true

	for _, pair := range [][2]string{{"", "b"}, {"a", ""}, {"a", "a"}} {
		ok, err := f.rel.IsFollowing(context.Background(), pair[0], pair[1])
		if err != nil || ok {
			t.Fatalf("%v: expected false without a store call, got %v, %v", pair, ok, err)
		}
	}
}

func TestListFollowers_OrderAndViewer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	target := f.user(t, "target")
	x := f.user(t, "x")
	y := f.user(t, "y")
	z := f.user(t, "z")

	for _, u := range []string{x, y, z} {
		if _, err := f.rel.Follow(ctx, u, target); err != nil {
			t.Fatalf("follow: %v", err)
		}
		f.clock.Advance(time.Minute)
	}
	_, _ = f.rel.Follow(ctx, x, y)

	page, err := f.rel.ListFollowers(ctx, target, x, 1, 2)
	if err != nil {
		t.Fatalf("list followers: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].UserID != z || page.Items[1].UserID != y {
		t.Fatalf("expected newest edge first, got %+v", page.Items)
	}
	if page.Items[0].Username != "z" {
		t.Fatalf("expected username, got %+v", page.Items[0])
	}
	if page.Items[0].IsFollowing || !page.Items[1].IsFollowing {
		t.Fatalf("viewer x follows y only, got %+v", page.Items)
	}

	last, err := f.rel.ListFollowers(ctx, target, "", 2, 2)
	if err != nil {
		t.Fatalf("list followers page 2: %v", err)
	}
	if len(last.Items) != 1 || last.Items[0].UserID != x || last.Items[0].IsFollowing {
		t.Fatalf("unexpected last page: %+v", last)
	}

	beyond, err := f.rel.ListFollowers(ctx, target, "", 5, 2)
	if err != nil {
		t.Fatalf("list beyond: %v", err)
	}
	if len(beyond.Items) != 0 || beyond.Total != 3 {
		t.Fatalf("page past the end should be empty, got %+v", beyond)
	}
}

func TestListFollowing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")
	c := f.user(t, "dana")

	_, _ = f.rel.Follow(ctx, a, b)
	f.clock.Advance(time.Second)
	_, _ = f.rel.Follow(ctx, a, c)

	page, err := f.rel.ListFollowing(ctx, a, a, 0, 0)
	if err != nil {
		t.Fatalf("list following: %v", err)
	}
	if page.Page != 1 || page.PageSize != 20 || page.Total != 2 {
		t.Fatalf("expected defaults applied, got %+v", page)
	}
	if page.Items[0].UserID != c || !page.Items[0].IsFollowing {
		t.Fatalf("unexpected first entry: %+v", page.Items[0])
	}

	if _, err := f.rel.ListFollowing(ctx, "ghost", "", 1, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}
	if _, err := f.rel.ListFollowing(ctx, a, "", 1, 1000); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized page: expected ErrValidation, got %v", err)
	}
}

func TestCountStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")
	c := f.user(t, "dana")

	_, _ = f.rel.Follow(ctx, a, b)
	_, _ = f.rel.Follow(ctx, c, b)
	_, _ = f.rel.Follow(ctx, b, a)

	stats, err := f.rel.CountStats(ctx, b)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != (FollowStats{Followers: 2, Following: 1}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	f.st.FailOn["CountFollowers"] = true
	if _, err := f.rel.CountStats(ctx, b); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestFollow_StoreFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "almaz")
	b := f.user(t, "nur")
	f.st.FailOn["CreateFollow"] = true

	if _, err := f.rel.Follow(ctx, a, b); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if got := f.st.Notifications; len(got) != 0 {
		t.Fatalf("failed follow must not notify, got %v", got)
	}
}
