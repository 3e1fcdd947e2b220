package feedview

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/scrollable/internal/models"
)

// fakeAPI serves a fixed list of posts, newest first.
type fakeAPI struct {
	posts   []models.PostView
	failFor map[int]error
	gate    chan struct{}
	calls   []int
}

func newFakeAPI(n int) *fakeAPI {
	api := &fakeAPI{failFor: map[int]error{}}
	for i := n; i >= 1; i-- {
		api.posts = append(api.posts, models.PostView{ID: fmt.Sprintf("p%d", i)})
	}
	return api
}

func (a *fakeAPI) Feed(ctx context.Context, page, limit int) (*models.FeedPage, error) {
	a.calls = append(a.calls, page)
	if a.gate != nil {
		<-a.gate
	}
	if err := a.failFor[page]; err != nil {
		return nil, err
	}
	skip := (page - 1) * limit
	end := min(skip+limit, len(a.posts))
	var out []models.PostView
	if skip < len(a.posts) {
		out = append(out, a.posts[skip:end]...)
	}
	return &models.FeedPage{
		Posts: out,
		Pagination: models.Pagination{
			Page:    page,
			Limit:   limit,
			Total:   int64(len(a.posts)),
			HasMore: skip+len(out) < len(a.posts),
		},
	}, nil
}

func (a *fakeAPI) ToggleLike(ctx context.Context, id string) (*models.PostView, error) {
	if id == "missing" {
		return nil, errors.New("Post not found")
	}
	return &models.PostView{ID: id, Likes: []string{"me"}, LikedByMe: true}, nil
}

func (a *fakeAPI) Comment(ctx context.Context, id, text string) (*models.PostView, error) {
	return &models.PostView{ID: id, Comments: []models.CommentView{{ID: "c1", Text: text}}}, nil
}

func (a *fakeAPI) DeletePost(ctx context.Context, id string) error {
	if id == "missing" {
		return errors.New("Post not found")
	}
	return nil
}

func ids(posts []models.PostView) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestScrollLoadsPagesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	f := New(newFakeAPI(15), 10)

	loaded, err := f.SentinelVisible(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Len(t, f.Posts(), 10)
	assert.Equal(t, 1, f.Page())
	assert.True(t, f.HasMore())

	loaded, err = f.SentinelVisible(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Len(t, f.Posts(), 15)
	assert.Equal(t, 2, f.Page())
	assert.False(t, f.HasMore())
	assert.Equal(t, "p15", f.Posts()[0].ID)
	assert.Equal(t, "p1", f.Posts()[14].ID)

	loaded, err = f.SentinelVisible(ctx)
	require.NoError(t, err)
	assert.False(t, loaded, "no request once the feed is exhausted")
}

func TestRefreshReplacesList(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(15)
	f := New(api, 10)
	_, _ = f.SentinelVisible(ctx)
	_, _ = f.SentinelVisible(ctx)
	require.Len(t, f.Posts(), 15)

	require.NoError(t, f.Refresh(ctx))
	assert.Len(t, f.Posts(), 10)
	assert.Equal(t, 1, f.Page())
	assert.True(t, f.HasMore())
	assert.Equal(t, []int{1, 2, 1}, api.calls)
}

func TestFailedLoadKeepsPage(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(15)
	f := New(api, 10)
	_, err := f.SentinelVisible(ctx)
	require.NoError(t, err)

	boom := errors.New("network down")
	api.failFor[2] = boom
	loaded, err := f.SentinelVisible(ctx)
	assert.True(t, loaded)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, f.Err(), boom)
	assert.Equal(t, 1, f.Page())
	assert.Len(t, f.Posts(), 10)
	assert.False(t, f.Loading())

	delete(api.failFor, 2)
	_, err = f.SentinelVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Page())
	assert.Len(t, f.Posts(), 15)
	assert.NoError(t, f.Err())
}

func TestSentinelIgnoredWhileLoading(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(15)
	api.gate = make(chan struct{})
	f := New(api, 10)

	done := make(chan error, 1)
	go func() {
		_, err := f.SentinelVisible(ctx)
		done <- err
	}()
	require.Eventually(t, f.Loading, time.Second, time.Millisecond)

	loaded, err := f.SentinelVisible(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.ErrorIs(t, f.Refresh(ctx), ErrLoading)

	close(api.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []int{1}, api.calls)
	assert.Equal(t, 1, f.Page())
}

func TestMutationsReplaceInPlace(t *testing.T) {
	ctx := context.Background()
	f := New(newFakeAPI(3), 10)
	_, err := f.SentinelVisible(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Like(ctx, "p2"))
	posts := f.Posts()
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids(posts))
	assert.True(t, posts[1].LikedByMe)
	assert.False(t, posts[0].LikedByMe)

	require.NoError(t, f.Comment(ctx, "p1", "hi"))
	posts = f.Posts()
	require.Len(t, posts[2].Comments, 1)
	assert.Equal(t, "hi", posts[2].Comments[0].Text)

	require.Error(t, f.Like(ctx, "missing"))
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids(f.Posts()))
}

func TestDeleteRemovesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	f := New(newFakeAPI(3), 10)
	_, err := f.SentinelVisible(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Delete(ctx, "p2"))
	assert.Equal(t, []string{"p3", "p1"}, ids(f.Posts()))

	require.Error(t, f.Delete(ctx, "missing"))
	assert.Equal(t, []string{"p3", "p1"}, ids(f.Posts()))
}
