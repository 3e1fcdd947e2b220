package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/scrollable/internal/models"
)

// PostgresStore keeps users and posts in PostgreSQL. Likes and comments
// live in child tables keyed by post.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username        VARCHAR(30)  UNIQUE NOT NULL,
			email           VARCHAR(255) UNIQUE NOT NULL,
			password        VARCHAR(255) NOT NULL,
			profile_picture TEXT         NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS posts (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq        BIGSERIAL,
			user_id    UUID        NOT NULL REFERENCES users(id),
			caption    VARCHAR(2200) NOT NULL DEFAULT '',
			media_url  TEXT        NOT NULL,
			media_type VARCHAR(5)  NOT NULL CHECK (media_type IN ('image', 'video')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS posts_feed_idx ON posts (created_at DESC, seq DESC);
		CREATE INDEX IF NOT EXISTS posts_media_url_idx ON posts (media_url);
		CREATE TABLE IF NOT EXISTS post_likes (
			post_id    UUID        NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id    UUID        NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (post_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS post_comments (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq        BIGSERIAL,
			post_id    UUID        NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			user_id    UUID        NOT NULL REFERENCES users(id),
			text       VARCHAR(500) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS post_comments_post_idx ON post_comments (post_id, seq);
	`)
	return err
}

// === Users ===

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	var out models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password, profile_picture)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, email, profile_picture, created_at, updated_at`,
		u.Username, u.Email, u.PasswordHash, u.ProfilePicture,
	).Scan(&out.ID, &out.Username, &out.Email, &out.ProfilePicture, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if pgCode(err) == "23505" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) UserExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR username = $2)`,
		email, username,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password, profile_picture, created_at, updated_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, profile_picture, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, email, profile_picture, created_at, updated_at
		 FROM users WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.User, 0, len(ids))
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// === Posts ===

const postColumns = `p.id, p.user_id, p.caption, p.media_url, p.media_type, p.created_at, p.updated_at,
	COALESCE((SELECT array_agg(l.user_id::text ORDER BY l.created_at)
	          FROM post_likes l WHERE l.post_id = p.id), '{}')`

func scanPost(row pgx.Row) (models.Post, error) {
	var p models.Post
	var mediaType string
	err := row.Scan(&p.ID, &p.AuthorID, &p.Caption, &p.MediaURL, &mediaType, &p.CreatedAt, &p.UpdatedAt, &p.Likes)
	p.MediaType = models.MediaType(mediaType)
	if p.Likes == nil {
		p.Likes = []string{}
	}
	p.Comments = []models.Comment{}
	return p, err
}

func (s *PostgresStore) InsertPost(ctx context.Context, p *models.Post) (*models.Post, error) {
	out := models.Post{Likes: []string{}, Comments: []models.Comment{}}
	var mediaType string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO posts (user_id, caption, media_url, media_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, caption, media_url, media_type, created_at, updated_at`,
		p.AuthorID, p.Caption, p.MediaURL, string(p.MediaType),
	).Scan(&out.ID, &out.AuthorID, &out.Caption, &out.MediaURL, &mediaType, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	out.MediaType = models.MediaType(mediaType)
	return &out, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts p
		 ORDER BY p.created_at DESC, p.seq DESC
		 OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadComments(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostgresStore) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountPostsByMediaURL(ctx context.Context, mediaURL string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE media_url = $1`, mediaURL).Scan(&n)
	return n, err
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanPost(s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.id = $1`, id))
	if err != nil {
		return nil, noRows(err)
	}
	posts := []models.Post{p}
	if err := s.loadComments(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// loadComments fills Comments for every post with one query.
func (s *PostgresStore) loadComments(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	index := make(map[string]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		index[p.ID] = i
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, user_id, text, created_at FROM post_comments
		 WHERE post_id = ANY($1::uuid[]) ORDER BY seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Comment
		var postID string
		if err := rows.Scan(&c.ID, &postID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return err
		}
		i := index[postID]
		posts[i].Comments = append(posts[i].Comments, c)
	}
	return rows.Err()
}

// ToggleLike relies on the (post_id, user_id) primary key: the delete and
// the conflict-ignoring insert each succeed for at most one caller.
func (s *PostgresStore) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return false, ErrNotFound
	}
	for attempt := 0; attempt < 3; attempt++ {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 1 {
			return false, s.touch(ctx, postID)
		}

		tag, err = s.pool.Exec(ctx,
			`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, postID, userID)
		if err != nil {
			if pgCode(err) == "23503" {
				return false, ErrNotFound
			}
			return false, err
		}
		if tag.RowsAffected() == 1 {
			return true, s.touch(ctx, postID)
		}
	}
	return false, fmt.Errorf("toggle like on %s: too much contention", postID)
}

func (s *PostgresStore) touch(ctx context.Context, postID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE posts SET updated_at = NOW() WHERE id = $1`, postID)
	return err
}

func (s *PostgresStore) AppendComment(ctx context.Context, postID string, c models.Comment) (*models.Comment, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return nil, ErrNotFound
	}
	out := c
	err := s.pool.QueryRow(ctx,
		`INSERT INTO post_comments (post_id, user_id, text)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		postID, c.AuthorID, c.Text,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if pgCode(err) == "23503" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	if err := s.touch(ctx, postID); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
