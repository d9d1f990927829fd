package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

var _ repository.MessageRepository = (*MessageStore)(nil)

type MessageStore struct {
	coll *mongo.Collection
}

type messageDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    bson.ObjectID `bson:"userId"`
	Username  string        `bson:"username"`
	Content   string        `bson:"content"`
	Room      string        `bson:"room"`
	Type      string        `bson:"type"`
	Edited    bool          `bson:"edited"`
	EditedAt  *time.Time    `bson:"editedAt,omitempty"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *messageDoc) toModel() *model.Message {
	return &model.Message{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Username:  d.Username,
		Content:   d.Content,
		Room:      d.Room,
		Type:      model.MessageType(d.Type),
		Edited:    d.Edited,
		EditedAt:  d.EditedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *MessageStore) Create(ctx context.Context, msg *model.Message) error {
	uid, err := bson.ObjectIDFromHex(msg.UserID)
	if err != nil {
		return fmt.Errorf("mongodb: creating message: invalid user id %q", msg.UserID)
	}
	if msg.Room == "" {
		msg.Room = model.DefaultRoom
	}
	if msg.Type == "" {
		msg.Type = model.MessageText
	}

	ts := now()
	oid := bson.NewObjectID()
	msg.CreatedAt = ts
	msg.UpdatedAt = ts

	_, err = s.coll.InsertOne(ctx, messageDoc{
		ID:        oid,
		UserID:    uid,
		Username:  msg.Username,
		Content:   msg.Content,
		Room:      msg.Room,
		Type:      string(msg.Type),
		Edited:    msg.Edited,
		EditedAt:  msg.EditedAt,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating message: %w", err)
	}
	msg.ID = oid.Hex()
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperror.NotFound("Message")
	}

	var doc messageDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("Message")
		}
		return nil, fmt.Errorf("mongodb: finding message %s: %w", id, err)
	}
	return doc.toModel(), nil
}

func (s *MessageStore) Update(ctx context.Context, msg *model.Message) error {
	oid, err := bson.ObjectIDFromHex(msg.ID)
	if err != nil {
		return apperror.NotFound("Message")
	}
	msg.UpdatedAt = now()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"content":   msg.Content,
		"edited":    msg.Edited,
		"editedAt":  msg.EditedAt,
		"updatedAt": msg.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("mongodb: updating message %s: %w", msg.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("Message")
	}
	return nil
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperror.NotFound("Message")
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongodb: deleting message %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("Message")
	}
	return nil
}

func (s *MessageStore) ListByRoom(ctx context.Context, room string, opts repository.ListOptions) ([]model.Message, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(opts.Limit)).
		SetSkip(int64(opts.Offset))

	cursor, err := s.coll.Find(ctx, bson.M{"room": room}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing messages: %w", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, *docs[i].toModel())
	}
	return msgs, nil
}

func (s *MessageStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting messages: %w", err)
	}
	return n, nil
}
