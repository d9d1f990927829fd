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

var _ repository.ChatRepository = (*ChatStore)(nil)

type ChatStore struct {
	coll *mongo.Collection
}

type chatTurnDoc struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
}

// chatDoc keeps the turns embedded. Messages is never omitted: the activity
// pipeline takes $size of it.
type chatDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    bson.ObjectID `bson:"userId"`
	Title     string        `bson:"title"`
	Messages  []chatTurnDoc `bson:"messages"`
	IsActive  bool          `bson:"isActive"`
	Model     string        `bson:"model"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func turnDocs(msgs []model.ChatMessage) []chatTurnDoc {
	docs := make([]chatTurnDoc, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, chatTurnDoc{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	return docs
}

func (d *chatDoc) toModel() *model.ChatHistory {
	msgs := make([]model.ChatMessage, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, model.ChatMessage{Role: model.ChatRole(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	return &model.ChatHistory{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Title:     d.Title,
		Messages:  msgs,
		IsActive:  d.IsActive,
		Model:     d.Model,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ownedFilter matches an active chat of the given owner. ok is false when
// either id is not an ObjectID.
func ownedFilter(id, userID string) (filter bson.M, ok bool) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "userId": uid, "isActive": true}, true
}

func (s *ChatStore) Create(ctx context.Context, chat *model.ChatHistory) error {
	uid, err := bson.ObjectIDFromHex(chat.UserID)
	if err != nil {
		return fmt.Errorf("mongodb: creating chat: invalid user id %q", chat.UserID)
	}

	ts := now()
	oid := bson.NewObjectID()
	chat.IsActive = true
	chat.CreatedAt = ts
	chat.UpdatedAt = ts
	if chat.Messages == nil {
		chat.Messages = []model.ChatMessage{}
	}

	_, err = s.coll.InsertOne(ctx, chatDoc{
		ID:        oid,
		UserID:    uid,
		Title:     chat.Title,
		Messages:  turnDocs(chat.Messages),
		IsActive:  true,
		Model:     chat.Model,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating chat: %w", err)
	}
	chat.ID = oid.Hex()
	return nil
}

func (s *ChatStore) GetActive(ctx context.Context, id, userID string) (*model.ChatHistory, error) {
	filter, ok := ownedFilter(id, userID)
	if !ok {
		return nil, apperror.NotFound("Chat")
	}

	var doc chatDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("Chat")
		}
		return nil, fmt.Errorf("mongodb: finding chat %s: %w", id, err)
	}
	return doc.toModel(), nil
}

// AppendMessages uses $push with $each, atomic on the single document.
func (s *ChatStore) AppendMessages(ctx context.Context, id, userID string, msgs []model.ChatMessage) (*model.ChatHistory, error) {
	filter, ok := ownedFilter(id, userID)
	if !ok {
		return nil, apperror.NotFound("Chat")
	}

	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": turnDocs(msgs)}},
		"$set":  bson.M{"updatedAt": now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc chatDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("Chat")
		}
		return nil, fmt.Errorf("mongodb: appending to chat %s: %w", id, err)
	}
	return doc.toModel(), nil
}

func (s *ChatStore) ListActive(ctx context.Context, userID string, limit int) ([]model.ChatHistory, error) {
	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return []model.ChatHistory{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"userId": uid, "isActive": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing chats: %w", err)
	}

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding chats: %w", err)
	}

	chats := make([]model.ChatHistory, 0, len(docs))
	for i := range docs {
		chats = append(chats, *docs[i].toModel())
	}
	return chats, nil
}

func (s *ChatStore) Deactivate(ctx context.Context, id, userID string) error {
	filter, ok := ownedFilter(id, userID)
	if !ok {
		return apperror.NotFound("Chat")
	}

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"isActive": false, "updatedAt": now()}})
	if err != nil {
		return fmt.Errorf("mongodb: deactivating chat %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("Chat")
	}
	return nil
}

func (s *ChatStore) DeleteByUsers(ctx context.Context, userIDs []string) (int64, error) {
	uids := objectIDs(userIDs)
	if len(uids) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"userId": bson.M{"$in": uids}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting chats: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *ChatStore) Activity(ctx context.Context, userID string, since time.Time) (model.ChatActivity, error) {
	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return model.ChatActivity{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": uid, "isActive": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"chats":    bson.M{"$sum": 1},
			"messages": bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$messages", bson.A{}}}}},
			"recent": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$gte": bson.A{"$updatedAt", since.UTC()}}, 1, 0},
			}},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return model.ChatActivity{}, fmt.Errorf("mongodb: aggregating chat activity: %w", err)
	}

	var results []struct {
		Chats    int64 `bson:"chats"`
		Messages int64 `bson:"messages"`
		Recent   int64 `bson:"recent"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return model.ChatActivity{}, fmt.Errorf("mongodb: decoding chat activity: %w", err)
	}
	if len(results) == 0 {
		return model.ChatActivity{}, nil
	}
	return model.ChatActivity{
		Chats:          results[0].Chats,
		Messages:       results[0].Messages,
		RecentlyActive: results[0].Recent,
	}, nil
}
