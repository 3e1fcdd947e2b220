package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/scrollable/internal/models"
)

// MongoStore keeps users and posts in MongoDB. Likes and comments are
// embedded in the post document.
type MongoStore struct {
	users *mongo.Collection
	posts *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		users: db.Collection("users"),
		posts: db.Collection("posts"),
	}
}

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Username       string             `bson:"username"`
	Email          string             `bson:"email"`
	Password       string             `bson:"password,omitempty"`
	ProfilePicture string             `bson:"profilePicture"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d *userDoc) model() *models.User {
	return &models.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Email:          d.Email,
		PasswordHash:   d.Password,
		ProfilePicture: d.ProfilePicture,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type postDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	User      primitive.ObjectID   `bson:"user"`
	Caption   string               `bson:"caption"`
	MediaURL  string               `bson:"mediaUrl"`
	MediaType string               `bson:"mediaType"`
	Likes     []primitive.ObjectID `bson:"likes"`
	Comments  []commentDoc         `bson:"comments"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

type commentDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	User      primitive.ObjectID `bson:"user"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *postDoc) model() models.Post {
	p := models.Post{
		ID:        d.ID.Hex(),
		AuthorID:  d.User.Hex(),
		Caption:   d.Caption,
		MediaURL:  d.MediaURL,
		MediaType: models.MediaType(d.MediaType),
		Likes:     make([]string, 0, len(d.Likes)),
		Comments:  make([]models.Comment, 0, len(d.Comments)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, id := range d.Likes {
		p.Likes = append(p.Likes, id.Hex())
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, c.model())
	}
	return p
}

func (d commentDoc) model() models.Comment {
	return models.Comment{ID: d.ID.Hex(), AuthorID: d.User.Hex(), Text: d.Text, CreatedAt: d.CreatedAt}
}

// publicUser leaves the password hash on the server.
var publicUser = options.FindOne().SetProjection(bson.M{"password": 0})

// EnsureIndexes creates the unique account indexes and the feed index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "mediaUrl", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("post indexes: %w", err)
	}
	return nil
}

// === Users ===

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	doc := userDoc{
		Username:       u.Username,
		Email:          u.Email,
		Password:       u.PasswordHash,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("mongo insert user: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	doc.Password = ""
	return doc.model(), nil
}

func (s *MongoStore) UserExists(ctx context.Context, email, username string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"email": email},
		bson.M{"username": username},
	}}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUserByEmail is the only lookup that returns the password hash.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}, publicUser).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (s *MongoStore) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []models.User{}, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetProjection(bson.M{"password": 0}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].model())
	}
	return out, nil
}

// === Posts ===

func (s *MongoStore) InsertPost(ctx context.Context, p *models.Post) (*models.Post, error) {
	author, err := primitive.ObjectIDFromHex(p.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("invalid author id: %w", err)
	}
	now := time.Now().UTC()
	doc := postDoc{
		User:      author,
		Caption:   p.Caption,
		MediaURL:  p.MediaURL,
		MediaType: string(p.MediaType),
		Likes:     []primitive.ObjectID{},
		Comments:  []commentDoc{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.posts.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("mongo insert post: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	out := doc.model()
	return &out, nil
}

func (s *MongoStore) ListPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := s.posts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

func (s *MongoStore) CountPosts(ctx context.Context) (int64, error) {
	return s.posts.CountDocuments(ctx, bson.M{})
}

func (s *MongoStore) CountPostsByMediaURL(ctx context.Context, mediaURL string) (int64, error) {
	return s.posts.CountDocuments(ctx, bson.M{"mediaUrl": mediaURL})
}

func (s *MongoStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	out := doc.model()
	return &out, nil
}

// ToggleLike flips membership with two conditional updates so a user id
// never lands in likes twice, whatever the interleaving.
func (s *MongoStore) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	pid, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return false, ErrNotFound
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, fmt.Errorf("invalid user id: %w", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		now := time.Now().UTC()
		res, err := s.posts.UpdateOne(ctx,
			bson.M{"_id": pid, "likes": uid},
			bson.M{"$pull": bson.M{"likes": uid}, "$set": bson.M{"updatedAt": now}})
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return false, nil
		}

		res, err = s.posts.UpdateOne(ctx,
			bson.M{"_id": pid, "likes": bson.M{"$ne": uid}},
			bson.M{"$addToSet": bson.M{"likes": uid}, "$set": bson.M{"updatedAt": now}})
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return true, nil
		}

		n, err := s.posts.CountDocuments(ctx, bson.M{"_id": pid}, options.Count().SetLimit(1))
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, ErrNotFound
		}
		// a concurrent toggle won both races; go again
	}
	return false, fmt.Errorf("toggle like on %s: too much contention", postID)
}

func (s *MongoStore) AppendComment(ctx context.Context, postID string, c models.Comment) (*models.Comment, error) {
	pid, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return nil, ErrNotFound
	}
	uid, err := primitive.ObjectIDFromHex(c.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("invalid author id: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	doc := commentDoc{ID: primitive.NewObjectID(), User: uid, Text: c.Text, CreatedAt: c.CreatedAt}

	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": pid}, bson.M{
		"$push": bson.M{"comments": doc},
		"$set":  bson.M{"updatedAt": c.CreatedAt},
	})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	out := doc.model()
	return &out, nil
}

func (s *MongoStore) DeletePost(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// objectIDs drops ids that are not valid hex ObjectIDs.
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}
