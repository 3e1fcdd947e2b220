package models

import "time"

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

func (t MediaType) Valid() bool { return t == MediaImage || t == MediaVideo }

const (
	MaxCaptionLen = 2200
	MaxCommentLen = 500
)

// Post is a stored media share. Likes holds user ids; a user appears at
// most once. Comments are append-only and kept in commit order.
type Post struct {
	ID        string
	AuthorID  string
	Caption   string
	MediaURL  string
	MediaType MediaType
	Likes     []string
	Comments  []Comment
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment is embedded in its post and has no lifecycle of its own.
type Comment struct {
	ID        string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// PostView is a post with its author and comment authors expanded.
type PostView struct {
	ID        string        `json:"id"`
	User      Author        `json:"user"`
	Caption   string        `json:"caption"`
	MediaURL  string        `json:"mediaUrl"`
	MediaType MediaType     `json:"mediaType"`
	Likes     []string      `json:"likes"`
	LikedByMe bool          `json:"likedByMe"`
	Comments  []CommentView `json:"comments"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type CommentView struct {
	ID        string    `json:"id"`
	User      Author    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// FeedPage is the body of GET /posts.
type FeedPage struct {
	Posts      []PostView `json:"posts"`
	Pagination Pagination `json:"pagination"`
}

// CreatePostRequest is the JSON body for POST /posts.
type CreatePostRequest struct {
	Caption   string    `json:"caption" validate:"max=2200"`
	MediaURL  string    `json:"mediaUrl" validate:"required,url"`
	MediaType MediaType `json:"mediaType" validate:"required,oneof=image video"`
}

// CommentRequest is the JSON body for POST /posts/{id}/comment.
type CommentRequest struct {
	Text string `json:"text"`
}

// Upload is the result of media ingestion.
type Upload struct {
	URL      string    `json:"url"`
	Type     MediaType `json:"type"`
	PublicID string    `json:"publicId"`
}
