package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/newsdesk/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const articlesCollection = "articles"

// MongoArticleRepository handles persistence for articles in MongoDB.
type MongoArticleRepository struct {
	articles *mongo.Collection
}

func NewMongoArticleRepository(database *mongo.Database) *MongoArticleRepository {
	return &MongoArticleRepository{articles: database.Collection(articlesCollection)}
}

// EnsureIndexes creates the full-text and listing indexes.
func (r *MongoArticleRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "publish_date", Value: -1}}},
		{Keys: bson.D{{Key: "is_published", Value: 1}}},
	})
	return err
}

func (r *MongoArticleRepository) List(ctx context.Context, filter types.ArticleFilter) ([]types.Article, int, error) {
	offset, limit := normalizePage(filter.Offset, filter.Limit)

	query := bson.M{}
	if filter.PublishedOnly {
		query["is_published"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query["$text"] = bson.M{"$search": search}
	}

	total, err := r.articles.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	sortKey := "created_at"
	if filter.PublishedOnly {
		sortKey = "publish_date"
	}
	opts := options.Find().
		SetSort(bson.D{{Key: sortKey, Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.articles.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	articles := make([]types.Article, 0, limit)
	if err := cursor.All(ctx, &articles); err != nil {
		return nil, 0, err
	}
	for i := range articles {
		articles[i].Tags = nonNilTags(articles[i].Tags)
	}
	return articles, int(total), nil
}

func (r *MongoArticleRepository) Get(ctx context.Context, id string) (types.Article, error) {
	var article types.Article
	if err := r.articles.FindOne(ctx, bson.M{"_id": id}).Decode(&article); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	article.Tags = nonNilTags(article.Tags)
	return article, nil
}

func (r *MongoArticleRepository) IncrementViews(ctx context.Context, id string) (types.Article, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var article types.Article
	err := r.articles.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "is_published": true},
		bson.M{"$inc": bson.M{"views": 1}},
		opts,
	).Decode(&article)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	article.Tags = nonNilTags(article.Tags)
	return article, nil
}

func (r *MongoArticleRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	now := time.Now()
	article.CreatedAt = now
	article.UpdatedAt = now
	if article.PublishDate.IsZero() {
		article.PublishDate = now
	}
	article.Tags = nonNilTags(article.Tags)

	if _, err := r.articles.InsertOne(ctx, article); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Article{}, ErrDuplicate
		}
		return types.Article{}, err
	}
	return article, nil
}

func (r *MongoArticleRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	article.UpdatedAt = time.Now()
	article.Tags = nonNilTags(article.Tags)

	result, err := r.articles.UpdateOne(ctx, bson.M{"_id": article.ID}, bson.M{"$set": bson.M{
		"title":        article.Title,
		"content":      article.Content,
		"author":       article.Author,
		"category":     article.Category,
		"image":        article.Image,
		"is_published": article.IsPublished,
		"tags":         article.Tags,
		"summary":      article.Summary,
		"publish_date": article.PublishDate,
		"updated_at":   article.UpdatedAt,
	}})
	if err != nil {
		return types.Article{}, err
	}
	if result.MatchedCount == 0 {
		return types.Article{}, ErrNotFound
	}
	return article, nil
}

func (r *MongoArticleRepository) SetImageKey(ctx context.Context, id, key string) error {
	result, err := r.articles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"image_key": key, "updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoArticleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.articles.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
