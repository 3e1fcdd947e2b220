// Package events publishes post lifecycle notifications. Delivery is best
// effort: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	PostCreated   = "post.created"
	PostLiked     = "post.liked"
	PostUnliked   = "post.unliked"
	PostCommented = "post.commented"
	PostDeleted   = "post.deleted"
)

// PostEvent is the payload on every post.* subject.
type PostEvent struct {
	PostID    string    `json:"post_id"`
	ActorID   string    `json:"actor_id"`
	MediaType string    `json:"media_type,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, ev PostEvent) error
}

type NatsPublisher struct {
	nc *nats.Conn
}

func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("scrollable-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

// Publish carries the active trace context in the message headers.
func (p *NatsPublisher) Publish(ctx context.Context, subject string, ev PostEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return p.nc.PublishMsg(msg)
}

type Noop struct{}

func (Noop) Publish(context.Context, string, PostEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Subject string
	Event   PostEvent
}

func (r *Recorder) Publish(_ context.Context, subject string, ev PostEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Event: ev})
	return nil
}

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Subject
	}
	return out
}
