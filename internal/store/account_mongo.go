package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/newsdesk/apiserver/internal/auth"
	"github.com/newsdesk/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	accountsCollection = "accounts"
	metaCollection     = "meta"
	bootstrapMarkerID  = "bootstrap"
)

// MongoAccountRepository handles persistence for accounts in MongoDB.
type MongoAccountRepository struct {
	accounts *mongo.Collection
	meta     *mongo.Collection
}

func NewMongoAccountRepository(database *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{
		accounts: database.Collection(accountsCollection),
		meta:     database.Collection(metaCollection),
	}
}

// EnsureIndexes creates the unique username and email indexes.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	})
	return err
}

func (r *MongoAccountRepository) Count(ctx context.Context) (int, error) {
	total, err := r.accounts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoAccountRepository) FindActiveByIdentifier(ctx context.Context, identifier string) (types.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	return r.findOne(ctx, bson.M{
		"is_active": true,
		"$or": bson.A{
			bson.M{"username": identifier},
			bson.M{"email": identifier},
		},
	})
}

func (r *MongoAccountRepository) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.accounts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	accounts := make([]types.Account, 0, limit)
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.UpdatedAt = account.CreatedAt

	if _, err := r.accounts.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

// CreateFirst claims the bootstrap marker before inserting, so only one
// caller can ever create the first account.
func (r *MongoAccountRepository) CreateFirst(ctx context.Context, account types.Account) (types.Account, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return types.Account{}, err
	}
	if total > 0 {
		return types.Account{}, ErrNotEmpty
	}

	marker := bson.M{"_id": bootstrapMarkerID, "account_id": account.ID, "created_at": time.Now()}
	if _, err := r.meta.InsertOne(ctx, marker); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Account{}, ErrNotEmpty
		}
		return types.Account{}, err
	}

	created, err := r.Create(ctx, account)
	if err != nil {
		_, _ = r.meta.DeleteOne(ctx, bson.M{"_id": bootstrapMarkerID})
		return types.Account{}, err
	}
	return created, nil
}

// RecordLoginFailure applies the lockout transition with a single pipeline
// update evaluated server side.
func (r *MongoAccountRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy auth.LockoutPolicy) (auth.LockoutState, error) {
	hasLock := bson.M{"$eq": bson.A{bson.M{"$type": "$lock_until"}, "date"}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"_expired":  bson.M{"$and": bson.A{hasLock, bson.M{"$lte": bson.A{"$lock_until", now}}}},
			"_attempts": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$login_attempts", 0}}, 1}},
		}}},
		{{Key: "$set", Value: bson.M{
			"login_attempts": bson.M{"$cond": bson.A{"$_expired", 1, "$_attempts"}},
			"lock_until": bson.M{"$switch": bson.M{
				"branches": bson.A{
					bson.M{"case": "$_expired", "then": "$$REMOVE"},
					bson.M{
						"case": bson.M{"$and": bson.A{
							bson.M{"$not": bson.A{hasLock}},
							bson.M{"$gte": bson.A{"$_attempts", policy.MaxAttempts}},
						}},
						"then": now.Add(policy.LockDuration),
					},
				},
				"default": "$lock_until",
			}},
			"updated_at": now,
		}}},
		{{Key: "$unset", Value: bson.A{"_expired", "_attempts"}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var account types.Account
	err := r.accounts.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.LockoutState{}, ErrNotFound
		}
		return auth.LockoutState{}, err
	}
	return auth.LockoutState{Attempts: account.LoginAttempts, LockUntil: account.LockUntil}, nil
}

func (r *MongoAccountRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return r.updateOne(ctx, id, bson.M{
		"$set":   bson.M{"login_attempts": 0, "last_login": now, "updated_at": now},
		"$unset": bson.M{"lock_until": ""},
	})
}

func (r *MongoAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"is_active": active, "updated_at": time.Now()},
	})
}

func (r *MongoAccountRepository) SetRole(ctx context.Context, id string, role types.Role, createdBy *string) error {
	update := bson.M{"$set": bson.M{"role": role, "updated_at": time.Now()}}
	if createdBy != nil {
		update["$set"].(bson.M)["created_by"] = *createdBy
	} else {
		update["$unset"] = bson.M{"created_by": ""}
	}
	return r.updateOne(ctx, id, update)
}

func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now()},
	})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (types.Account, error) {
	var account types.Account
	if err := r.accounts.FindOne(ctx, filter).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *MongoAccountRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	result, err := r.accounts.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
