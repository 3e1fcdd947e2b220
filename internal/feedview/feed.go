// Package feedview keeps the client-side state of the infinite feed: the
// posts loaded so far, which page comes next and whether a load is in
// flight. Mutations are applied from the server's answer, never simulated.
package feedview

import (
	"context"
	"errors"
	"sync"

	"github.com/ayush/scrollable/internal/models"
)

// API is the subset of the HTTP client the feed drives.
type API interface {
	Feed(ctx context.Context, page, limit int) (*models.FeedPage, error)
	ToggleLike(ctx context.Context, id string) (*models.PostView, error)
	Comment(ctx context.Context, id, text string) (*models.PostView, error)
	DeletePost(ctx context.Context, id string) error
}

var ErrLoading = errors.New("feed is already loading")

type Feed struct {
	api   API
	limit int

	mu      sync.Mutex
	posts   []models.PostView
	page    int
	hasMore bool
	loading bool
	lastErr error
}

// New returns an empty feed. The first SentinelVisible or Refresh loads
// page 1.
func New(api API, limit int) *Feed {
	if limit < 1 {
		limit = 10
	}
	return &Feed{api: api, limit: limit, hasMore: true}
}

// Refresh reloads page 1 and replaces the list.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return ErrLoading
	}
	f.loading = true
	f.mu.Unlock()

	return f.load(ctx, 1)
}

// SentinelVisible is the scrolled-to-bottom signal. It loads the next page
// when more exist and nothing is in flight, and reports whether it did.
func (f *Feed) SentinelVisible(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if !f.hasMore || f.loading {
		f.mu.Unlock()
		return false, nil
	}
	f.loading = true
	next := f.page + 1
	f.mu.Unlock()

	return true, f.load(ctx, next)
}

// load must be called with loading already set.
func (f *Feed) load(ctx context.Context, page int) error {
	res, err := f.api.Feed(ctx, page, f.limit)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	f.lastErr = err
	if err != nil {
		return err
	}

	if page == 1 {
		f.posts = append([]models.PostView(nil), res.Posts...)
	} else {
		f.posts = append(f.posts, res.Posts...)
	}
	f.page = page
	f.hasMore = res.Pagination.HasMore
	return nil
}

func (f *Feed) Like(ctx context.Context, id string) error {
	p, err := f.api.ToggleLike(ctx, id)
	return f.apply(p, err)
}

func (f *Feed) Comment(ctx context.Context, id, text string) error {
	p, err := f.api.Comment(ctx, id, text)
	return f.apply(p, err)
}

// apply swaps in the server's copy of a post, keeping its position.
func (f *Feed) apply(p *models.PostView, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	if err != nil {
		return err
	}
	if i := f.indexOf(p.ID); i >= 0 {
		f.posts[i] = *p
	}
	return nil
}

// Delete removes the post once the server has deleted it.
func (f *Feed) Delete(ctx context.Context, id string) error {
	err := f.api.DeletePost(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	if err != nil {
		return err
	}
	if i := f.indexOf(id); i >= 0 {
		f.posts = append(f.posts[:i], f.posts[i+1:]...)
	}
	return nil
}

func (f *Feed) indexOf(id string) int {
	for i := range f.posts {
		if f.posts[i].ID == id {
			return i
		}
	}
	return -1
}

// Posts returns a copy of the loaded posts in feed order.
func (f *Feed) Posts() []models.PostView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PostView(nil), f.posts...)
}

// Page is the last page loaded successfully, 0 before the first load.
func (f *Feed) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Err is the error of the last operation, nil after a success.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}
