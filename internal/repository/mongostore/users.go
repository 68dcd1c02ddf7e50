package mongostore

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/repository"
)

// UserRepo implements repository.UserStore and repository.TokenStore.
type UserRepo struct {
	col *mongo.Collection
}

var (
	_ repository.UserStore  = (*UserRepo)(nil)
	_ repository.TokenStore = (*UserRepo)(nil)
)

func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = model.NormalizeUsername(u.Username)
	u.Email = model.NormalizeEmail(u.Email)
	if u.Interests == nil {
		u.Interests = []string{}
	}
	_, err := r.col.InsertOne(ctx, u)
	return wrapError(err)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.D{{Key: "_id", Value: id}})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

func (r *UserRepo) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	return findOne[model.User](ctx, r.col, loginFilter(identifier))
}

func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == "" {
		return nil, repository.ErrNotFound
	}
	return findOne[model.User](ctx, r.col, bson.D{{Key: "external_id", Value: externalID}})
}

func (r *UserRepo) SearchByUsername(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}}).SetLimit(int64(limit))
	return findMany[model.User](ctx, r.col, usernamePrefixFilter(prefix), opts)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, fullname, email string) error {
	return updateFields(ctx, r.col, id, bson.D{
		{Key: "fullname", Value: fullname},
		{Key: "email", Value: model.NormalizeEmail(email)},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *UserRepo) UpdateInterests(ctx context.Context, id string, interests []string) error {
	return updateFields(ctx, r.col, id, bson.D{
		{Key: "interests", Value: interests},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return updateFields(ctx, r.col, id, bson.D{
		{Key: "password_hash", Value: hash},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *UserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return updateFields(ctx, r.col, id, bson.D{
		{Key: "role", Value: role},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *UserRepo) LinkExternal(ctx context.Context, id, externalID string) error {
	return updateFields(ctx, r.col, id, bson.D{
		{Key: "external_id", Value: externalID},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *UserRepo) SetRefresh(ctx context.Context, userID, hash string) error {
	return updateFields(ctx, r.col, userID, bson.D{
		{Key: "refresh_token_hash", Value: hash},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

// RotateRefresh matches on the old hash so only one concurrent rotation wins.
func (r *UserRepo) RotateRefresh(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	res, err := r.col.UpdateOne(ctx, rotateFilter(userID, oldHash), bson.D{{Key: "$set", Value: bson.D{
		{Key: "refresh_token_hash", Value: newHash},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return false, wrapError(err)
	}
	return res.MatchedCount == 1, nil
}

func (r *UserRepo) ClearRefresh(ctx context.Context, userID string) error {
	_, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: userID}}, bson.D{
		{Key: "$unset", Value: bson.D{{Key: "refresh_token_hash", Value: ""}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	})
	return wrapError(err)
}

func loginFilter(identifier string) bson.D {
	id := strings.ToLower(strings.TrimSpace(identifier))
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: id}},
		bson.D{{Key: "email", Value: id}},
	}}}
}

func usernamePrefixFilter(prefix string) bson.D {
	pattern := "^" + regexp.QuoteMeta(model.NormalizeUsername(prefix))
	return bson.D{{Key: "username", Value: bson.Regex{Pattern: pattern}}}
}

func rotateFilter(userID, oldHash string) bson.D {
	return bson.D{
		{Key: "_id", Value: userID},
		{Key: "refresh_token_hash", Value: oldHash},
	}
}
