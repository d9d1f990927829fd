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

var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct {
	coll *mongo.Collection
}

type userDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Username  string        `bson:"username"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"`
	Role      string        `bson:"role"`
	Avatar    string        `bson:"avatar"`
	GitHubID  int64         `bson:"githubId,omitempty"`
	IsOnline  bool          `bson:"isOnline"`
	LastSeen  time.Time     `bson:"lastSeen"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		Role:         model.Role(d.Role),
		Avatar:       d.Avatar,
		GitHubID:     d.GitHubID,
		IsOnline:     d.IsOnline,
		LastSeen:     d.LastSeen,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Avatar == "" {
		user.Avatar = model.DefaultAvatar
	}

	ts := now()
	oid := bson.NewObjectID()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.LastSeen.IsZero() {
		user.LastSeen = ts
	}

	_, err := s.coll.InsertOne(ctx, userDoc{
		ID:        oid,
		Username:  user.Username,
		Email:     user.Email,
		Password:  user.PasswordHash,
		Role:      string(user.Role),
		Avatar:    user.Avatar,
		GitHubID:  user.GitHubID,
		IsOnline:  user.IsOnline,
		LastSeen:  user.LastSeen,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
	if err != nil {
		if conflict := duplicateKey(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("mongodb: creating user: %w", err)
	}
	user.ID = oid.Hex()
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("mongodb: finding user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperror.NotFound("User")
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *UserStore) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return s.findOne(ctx, bson.M{"githubId": githubID})
}

func (s *UserStore) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []model.User{}, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, nil)
}

func (s *UserStore) AdminExists(ctx context.Context) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"role": model.RoleAdmin}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb: checking for admin: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, bson.M{}, opts)
}

func (s *UserStore) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, bson.M{"createdAt": bson.M{"$gte": since}}, opts)
}

func (s *UserStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.User, error) {
	var findOpts []options.Lister[options.FindOptions]
	if opts != nil {
		findOpts = append(findOpts, opts)
	}

	cursor, err := s.coll.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing users: %w", err)
	}

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding users: %w", err)
	}

	users := make([]model.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toModel())
	}
	return users, nil
}

func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	oid, err := bson.ObjectIDFromHex(user.ID)
	if err != nil {
		return apperror.NotFound("User")
	}
	user.UpdatedAt = now()

	update := bson.M{
		"$set": bson.M{
			"username":  user.Username,
			"email":     user.Email,
			"password":  user.PasswordHash,
			"role":      user.Role,
			"avatar":    user.Avatar,
			"updatedAt": user.UpdatedAt,
		},
	}
	// A zero id must leave the field absent, or the sparse unique index
	// would see every unlinked account as a duplicate.
	if user.GitHubID != 0 {
		update["$set"].(bson.M)["githubId"] = user.GitHubID
	} else {
		update["$unset"] = bson.M{"githubId": ""}
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		if conflict := duplicateKey(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("mongodb: updating user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

func (s *UserStore) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperror.NotFound("User")
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"isOnline": online, "lastSeen": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: setting presence of user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperror.NotFound("User")
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongodb: deleting user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

func (s *UserStore) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting users: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting users: %w", err)
	}
	return n, nil
}

func (s *UserStore) CountSeenSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"lastSeen": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting active users: %w", err)
	}
	return n, nil
}
