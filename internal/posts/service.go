package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/events"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
	"github.com/ayush/scrollable/internal/validate"
)

// PostStore defines the interface for post persistence.
type PostStore interface {
	InsertPost(ctx context.Context, p *models.Post) (*models.Post, error)
	ListPosts(ctx context.Context, skip, limit int64) ([]models.Post, error)
	CountPosts(ctx context.Context) (int64, error)
	CountPostsByMediaURL(ctx context.Context, mediaURL string) (int64, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// ToggleLike must be atomic per call: concurrent toggles never leave a
	// user id in likes twice. It reports whether the user now likes the post.
	ToggleLike(ctx context.Context, postID, userID string) (bool, error)
	// AppendComment must not lose concurrent appends and keeps insertion order.
	AppendComment(ctx context.Context, postID string, c models.Comment) (*models.Comment, error)
	DeletePost(ctx context.Context, id string) error
}

// UserDirectory expands author references.
type UserDirectory interface {
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// MediaReleaser frees the stored object behind a deleted post. It must
// leave objects uploaded by anyone other than requesterID in place.
type MediaReleaser interface {
	Release(ctx context.Context, mediaURL, requesterID string) error
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

const (
	msgPostNotFound    = "Post not found"
	msgMediaRequired   = "Media URL and media type are required"
	msgCommentRequired = "Comment text is required"
	msgNotYourPost     = "Not authorized to delete this post"
)

type Service struct {
	posts  PostStore
	users  UserDirectory
	events events.Publisher
	media  MediaReleaser
	log    logrus.FieldLogger
}

func NewService(posts PostStore, users UserDirectory, pub events.Publisher, log logrus.FieldLogger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{posts: posts, users: users, events: pub, log: log.WithField("component", "posts")}
}

// WithMedia makes DeletePost also release the post's stored media.
func (s *Service) WithMedia(m MediaReleaser) *Service {
	s.media = m
	return s
}

// NormalizePage applies the feed defaults: page below 1 becomes 1, limit
// below 1 becomes the default and limit is capped at MaxLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func (s *Service) CreatePost(ctx context.Context, authorID string, req models.CreatePostRequest) (*models.PostView, error) {
	req.Caption = strings.TrimSpace(req.Caption)
	req.MediaURL = strings.TrimSpace(req.MediaURL)
	if req.MediaURL == "" || req.MediaType == "" {
		return nil, apperr.Validation(msgMediaRequired)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	p, err := s.posts.InsertPost(ctx, &models.Post{
		AuthorID:  authorID,
		Caption:   req.Caption,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	s.publish(ctx, events.PostCreated, events.PostEvent{PostID: p.ID, ActorID: authorID, MediaType: string(p.MediaType)})
	return s.view(ctx, p, authorID)
}

// ListPosts returns one page of the global feed, newest first.
func (s *Service) ListPosts(ctx context.Context, page, limit int, viewerID string) (*models.FeedPage, error) {
	page, limit = NormalizePage(page, limit)
	skip := int64(page-1) * int64(limit)

	list, err := s.posts.ListPosts(ctx, skip, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	total, err := s.posts.CountPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	views, err := s.expand(ctx, list, viewerID)
	if err != nil {
		return nil, err
	}
	return &models.FeedPage{
		Posts: views,
		Pagination: models.Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: skip+int64(len(list)) < total,
		},
	}, nil
}

func (s *Service) GetPost(ctx context.Context, id, viewerID string) (*models.PostView, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, viewerID)
}

// ToggleLike adds the user to likes when absent and removes it otherwise.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (*models.PostView, error) {
	liked, err := s.posts.ToggleLike(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, fmt.Errorf("toggle like: %w", err)
	}
	subject := events.PostUnliked
	if liked {
		subject = events.PostLiked
	}
	s.publish(ctx, subject, events.PostEvent{PostID: postID, ActorID: userID})
	return s.GetPost(ctx, postID, userID)
}

func (s *Service) AddComment(ctx context.Context, postID, userID, text string) (*models.PostView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation(msgCommentRequired)
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLen {
		return nil, apperr.Validation(fmt.Sprintf("Comment cannot exceed %d characters", models.MaxCommentLen))
	}

	c, err := s.posts.AppendComment(ctx, postID, models.Comment{
		AuthorID:  userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, fmt.Errorf("append comment: %w", err)
	}
	s.publish(ctx, events.PostCommented, events.PostEvent{PostID: postID, ActorID: userID, CommentID: c.ID})
	return s.GetPost(ctx, postID, userID)
}

// DeletePost removes a post and its comments. Only the author may do so.
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	p, err := s.load(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != requesterID {
		return apperr.Forbidden(msgNotYourPost)
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(msgPostNotFound)
		}
		return fmt.Errorf("delete post: %w", err)
	}
	s.releaseMedia(ctx, p, requesterID)
	s.publish(ctx, events.PostDeleted, events.PostEvent{PostID: postID, ActorID: requesterID})
	return nil
}

// releaseMedia frees the deleted post's object once no other post points
// at it. Failures only get logged; the post is already gone.
func (s *Service) releaseMedia(ctx context.Context, p *models.Post, requesterID string) {
	if s.media == nil || p.MediaURL == "" {
		return
	}
	entry := s.log.WithField("post_id", p.ID)
	n, err := s.posts.CountPostsByMediaURL(ctx, p.MediaURL)
	if err != nil {
		entry.WithError(err).Warn("count media references failed")
		return
	}
	if n > 0 {
		entry.WithField("references", n).Debug("media still referenced")
		return
	}
	if err := s.media.Release(ctx, p.MediaURL, requesterID); err != nil {
		entry.WithError(err).Warn("release media failed")
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.Post, error) {
	p, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (s *Service) view(ctx context.Context, p *models.Post, viewerID string) (*models.PostView, error) {
	views, err := s.expand(ctx, []models.Post{*p}, viewerID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// expand resolves post and comment authors with a single batched lookup.
func (s *Service) expand(ctx context.Context, list []models.Post, viewerID string) ([]models.PostView, error) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range list {
		add(p.AuthorID)
		for _, c := range p.Comments {
			add(c.AuthorID)
		}
	}

	authors := make(map[string]models.Author, len(ids))
	if len(ids) > 0 {
		users, err := s.users.GetUsersByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("expand authors: %w", err)
		}
		for i := range users {
			authors[users[i].ID] = users[i].Author()
		}
	}
	author := func(id string) models.Author {
		if a, ok := authors[id]; ok {
			return a
		}
		// deleted accounts still render
		return models.Author{ID: id}
	}

	out := make([]models.PostView, 0, len(list))
	for i := range list {
		p := &list[i]
		comments := make([]models.CommentView, 0, len(p.Comments))
		for _, c := range p.Comments {
			comments = append(comments, models.CommentView{
				ID:        c.ID,
				User:      author(c.AuthorID),
				Text:      c.Text,
				CreatedAt: c.CreatedAt,
			})
		}
		likes := p.Likes
		if likes == nil {
			likes = []string{}
		}
		out = append(out, models.PostView{
			ID:        p.ID,
			User:      author(p.AuthorID),
			Caption:   p.Caption,
			MediaURL:  p.MediaURL,
			MediaType: p.MediaType,
			Likes:     likes,
			LikedByMe: viewerID != "" && p.LikedBy(viewerID),
			Comments:  comments,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, subject string, ev events.PostEvent) {
	ev.At = time.Now().UTC()
	if err := s.events.Publish(ctx, subject, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"subject": subject,
			"post_id": ev.PostID,
		}).Warn("publish event failed")
	}
}
