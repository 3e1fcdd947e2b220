package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayush/scrollable/internal/models"
)

// MemoryStore keeps users and posts in process memory. It backs tests and
// the "memory" driver.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
	posts map[string]*memPost
	seq   int64
	now   func() time.Time
}

type memPost struct {
	post models.Post
	seq  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*models.User),
		posts: make(map[string]*memPost),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// === Users ===

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return nil, ErrDuplicate
		}
	}
	created := *u
	created.ID = uuid.NewString()
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt
	s.users[created.ID] = &created

	out := created
	out.PasswordHash = ""
	return &out, nil
}

func (s *MemoryStore) UserExists(ctx context.Context, email, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

func (s *MemoryStore) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			cp.PasswordHash = ""
			out = append(out, cp)
		}
	}
	return out, nil
}

// DeleteUser exists for tests that need a token whose user is gone.
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// === Posts ===

func (s *MemoryStore) InsertPost(ctx context.Context, p *models.Post) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	created := clonePost(p)
	created.ID = uuid.NewString()
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt
	if created.Likes == nil {
		created.Likes = []string{}
	}
	if created.Comments == nil {
		created.Comments = []models.Comment{}
	}
	s.posts[created.ID] = &memPost{post: created, seq: s.seq}

	out := clonePost(&created)
	return &out, nil
}

// ListPosts orders newest first; insertion order breaks timestamp ties.
func (s *MemoryStore) ListPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*memPost, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].post.CreatedAt.Equal(all[j].post.CreatedAt) {
			return all[i].post.CreatedAt.After(all[j].post.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	if skip >= int64(len(all)) {
		return []models.Post{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	out := make([]models.Post, 0, end-skip)
	for _, p := range all[skip:end] {
		out = append(out, clonePost(&p.post))
	}
	return out, nil
}

func (s *MemoryStore) CountPosts(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.posts)), nil
}

func (s *MemoryStore) CountPostsByMediaURL(ctx context.Context, mediaURL string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.posts {
		if p.post.MediaURL == mediaURL {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clonePost(&p.post)
	return &out, nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return false, ErrNotFound
	}
	for i, id := range p.post.Likes {
		if id == userID {
			p.post.Likes = append(p.post.Likes[:i:i], p.post.Likes[i+1:]...)
			p.post.UpdatedAt = s.now()
			return false, nil
		}
	}
	p.post.Likes = append(p.post.Likes, userID)
	p.post.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) AppendComment(ctx context.Context, postID string, c models.Comment) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	p.post.Comments = append(p.post.Comments, c)
	p.post.UpdatedAt = s.now()
	return &c, nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func clonePost(p *models.Post) models.Post {
	out := *p
	out.Likes = append([]string(nil), p.Likes...)
	out.Comments = append([]models.Comment(nil), p.Comments...)
	if out.Likes == nil {
		out.Likes = []string{}
	}
	if out.Comments == nil {
		out.Comments = []models.Comment{}
	}
	return out
}

// MemoryFileStore keeps uploaded objects in memory.
type MemoryFileStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
	meta        map[string]string
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{objects: make(map[string]memObject)}
}

func (s *MemoryFileStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, meta map[string]string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{data: buf.Bytes(), contentType: contentType, meta: meta}
	return nil
}

func (s *MemoryFileStore) Download(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return obj.data, obj.contentType, nil
}

// Metadata returns the user metadata stored with key.
func (s *MemoryFileStore) Metadata(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return obj.meta, nil
}

func (s *MemoryFileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}
