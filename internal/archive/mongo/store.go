// Package mongo is an [archive.Store] backed by a MongoDB collection. Each
// archive is one document keyed by its game id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MrWong99/werewolf/internal/archive"
	"github.com/MrWong99/werewolf/internal/game"
)

// DefaultCollection is the collection archives are stored in.
const DefaultCollection = "game_archives"

// Store is an [archive.Store] backed by a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

var _ archive.Store = (*Store)(nil)

// New returns a store writing to coll.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Connect dials uri, verifies the connection and returns a store on the
// archives collection of database together with a function that disconnects
// the client.
func Connect(ctx context.Context, uri, database string) (*Store, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("archive: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("archive: mongo ping: %w", err)
	}
	s := New(client.Database(database).Collection(DefaultCollection))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return s, client.Disconnect, nil
}

// EnsureIndexes creates the listing index on createdAt.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("archive: mongo indexes: %w", err)
	}
	return nil
}

// Save implements [archive.Store].
func (s *Store) Save(ctx context.Context, a game.Archive) error {
	_, err := s.coll.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("archive: save %q: %w", a.ID, archive.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("archive: save %q: %w", a.ID, err)
	}
	return nil
}

// Get implements [archive.Store].
func (s *Store) Get(ctx context.Context, id string) (game.Archive, error) {
	var a game.Archive
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, archive.ErrNotFound)
	}
	if err != nil {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, err)
	}
	return a, nil
}

// summaryProjection limits List to the listing fields.
var summaryProjection = bson.M{
	"_id": 1, "mode": 1, "title": 1, "winner": 1,
	"turns": 1, "playerCount": 1, "createdAt": 1,
}

// List implements [archive.Store].
func (s *Store) List(ctx context.Context) ([]game.Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(summaryProjection)
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer cursor.Close(ctx)

	out := []game.Summary{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("archive: list decode: %w", err)
	}
	return out, nil
}

// Delete implements [archive.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("archive: delete %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("archive: delete %q: %w", id, archive.ErrNotFound)
	}
	return nil
}
