// Package mongodb implements the repository interfaces on MongoDB using the
// official v2 driver. It is the production store (STORE_DRIVER=mongo).
//
// Collections:
//
//	users         one document per account
//	chathistories one document per AI conversation, turns embedded in "messages"
//	messages      community board posts
//
// IDs are ObjectIDs in the database and hex strings everywhere else. A string
// that is not a valid ObjectID can never match a document, so lookups treat
// it as NotFound instead of a validation error.
package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *UserStore
	chats    *ChatStore
	messages *MessageStore
}

// New connects to uri, verifies the connection and ensures indexes on
// database dbName.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		db:       db,
		users:    &UserStore{coll: db.Collection("users")},
		chats:    &ChatStore{coll: db.Collection("chathistories")},
		messages: &MessageStore{coll: db.Collection("messages")},
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) Users() repository.UserRepository       { return s.users }
func (s *Store) Chats() repository.ChatRepository       { return s.chats }
func (s *Store) Messages() repository.MessageRepository { return s.messages }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb: ping: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Sparse: password accounts have no githubId at all.
		{Keys: bson.D{{Key: "githubId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}

	_, err = s.chats.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("chathistories: %w", err)
	}

	_, err = s.messages.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	return nil
}

// now truncates to milliseconds, the resolution of a BSON datetime, so the
// values handed back to callers match what a later read returns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// objectIDs parses hex ids, dropping the ones that are not ObjectIDs.
func objectIDs(ids []string) []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

// duplicateKey translates an E11000 error into apperror.Conflict naming the
// offending field, or returns nil for any other error.
func duplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	for _, field := range []string{"email", "username", "githubId"} {
		if strings.Contains(msg, field) {
			return apperror.Conflict(field, fmt.Sprintf("%s already exists", field))
		}
	}
	return apperror.Conflict("", "record already exists")
}
