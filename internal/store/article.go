package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newsdesk/apiserver/types"
)

const articleColumns = `
		id, title, content, author, category, image, image_key, is_published,
		views, tags, summary, publish_date, created_at, updated_at`

// ArticleRepository handles persistence for articles in Postgres.
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) List(ctx context.Context, filter types.ArticleFilter) ([]types.Article, int, error) {
	offset, limit := normalizePage(filter.Offset, filter.Limit)

	var conds []string
	var args []any
	if filter.PublishedOnly {
		conds = append(conds, "is_published")
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, search)
		conds = append(conds, fmt.Sprintf(
			"to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $%d)", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(1) FROM articles`
	if where != "" {
		countQuery += " " + where
	}
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, id"
	if filter.PublishedOnly {
		order = "publish_date DESC, id"
	}
	args = append(args, offset, limit)
	listQuery := fmt.Sprintf(`SELECT %s
		FROM articles
		%s
		ORDER BY %s
		OFFSET $%d LIMIT $%d`, articleColumns, where, order, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	articles := make([]types.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (r *ArticleRepository) Get(ctx context.Context, id string) (types.Article, error) {
	query := `SELECT ` + articleColumns + `
		FROM articles
		WHERE id = $1`
	return scanArticle(r.db.QueryRowContext(ctx, query, id))
}

// IncrementViews bumps the view counter of a published article and returns
// the updated row.
func (r *ArticleRepository) IncrementViews(ctx context.Context, id string) (types.Article, error) {
	query := `UPDATE articles
		SET views = views + 1
		WHERE id = $1 AND is_published
		RETURNING ` + articleColumns
	return scanArticle(r.db.QueryRowContext(ctx, query, id))
}

func (r *ArticleRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	now := time.Now()
	article.CreatedAt = now
	article.UpdatedAt = now
	if article.PublishDate.IsZero() {
		article.PublishDate = now
	}

	tagsJSON, err := json.Marshal(nonNilTags(article.Tags))
	if err != nil {
		return types.Article{}, err
	}

	const query = `
		INSERT INTO articles (id, title, content, author, category, image, image_key, is_published,
			views, tags, summary, publish_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.db.ExecContext(
		ctx,
		query,
		article.ID,
		article.Title,
		article.Content,
		article.Author,
		string(article.Category),
		article.Image,
		article.ImageKey,
		article.IsPublished,
		article.Views,
		tagsJSON,
		article.Summary,
		article.PublishDate,
		article.CreatedAt,
		article.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Article{}, ErrDuplicate
		}
		return types.Article{}, err
	}
	return article, nil
}

func (r *ArticleRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	article.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(nonNilTags(article.Tags))
	if err != nil {
		return types.Article{}, err
	}

	const query = `
		UPDATE articles
		SET title = $1,
			content = $2,
			author = $3,
			category = $4,
			image = $5,
			is_published = $6,
			tags = $7,
			summary = $8,
			publish_date = $9,
			updated_at = $10
		WHERE id = $11`
	err = execAffectingOne(
		ctx,
		r.db,
		query,
		article.Title,
		article.Content,
		article.Author,
		string(article.Category),
		article.Image,
		article.IsPublished,
		tagsJSON,
		article.Summary,
		article.PublishDate,
		article.UpdatedAt,
		article.ID,
	)
	if err != nil {
		return types.Article{}, err
	}
	return article, nil
}

func (r *ArticleRepository) SetImageKey(ctx context.Context, id, key string) error {
	const query = `UPDATE articles SET image_key = $2, updated_at = $3 WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id, key, time.Now())
}

func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM articles WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id)
}

func scanArticle(row rowScanner) (types.Article, error) {
	var article types.Article
	var category string
	var tagsJSON []byte
	err := row.Scan(
		&article.ID,
		&article.Title,
		&article.Content,
		&article.Author,
		&category,
		&article.Image,
		&article.ImageKey,
		&article.IsPublished,
		&article.Views,
		&tagsJSON,
		&article.Summary,
		&article.PublishDate,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Article{}, ErrNotFound
		}
		return types.Article{}, err
	}
	article.Category = types.Category(category)
	_ = json.Unmarshal(tagsJSON, &article.Tags)
	article.Tags = nonNilTags(article.Tags)
	return article, nil
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	return offset, limit
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
