package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/newsdesk/apiserver/internal/events"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultArticleLimit = 10
	maxArticleLimit     = 50
	summaryLength       = 200
	MaxImageBytes       = 10 << 20

	// MaxPage bounds page numbers so that (page-1)*limit cannot overflow.
	MaxPage = 100000
)

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ArticleRepository defines persistence operations for articles.
type ArticleRepository interface {
	List(ctx context.Context, filter types.ArticleFilter) ([]types.Article, int, error)
	Get(ctx context.Context, id string) (types.Article, error)
	IncrementViews(ctx context.Context, id string) (types.Article, error)
	Create(ctx context.Context, article types.Article) (types.Article, error)
	Update(ctx context.Context, article types.Article) (types.Article, error)
	SetImageKey(ctx context.Context, id, key string) error
	Delete(ctx context.Context, id string) error
}

// ArticleInput is the editable part of an article.
type ArticleInput struct {
	Title       string     `json:"title" validate:"required,min=5,max=200"`
	Content     string     `json:"content" validate:"required,min=50"`
	Author      string     `json:"author" validate:"omitempty,min=2,max=100"`
	Category    string     `json:"category" validate:"required,oneof=Technology Politics Sports Entertainment"`
	Image       string     `json:"image" validate:"omitempty,http_url"`
	Summary     string     `json:"summary" validate:"omitempty,max=500"`
	Tags        []string   `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	IsPublished *bool      `json:"is_published"`
	PublishDate *time.Time `json:"publish_date"`
}

// ArticleQuery selects a page of articles.
type ArticleQuery struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// ArticlePage is one page of a listing.
type ArticlePage struct {
	Articles []types.Article `json:"articles"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Total    int             `json:"total"`
	Pages    int             `json:"pages"`
}

// ArticleService encapsulates article use-cases.
type ArticleService struct {
	repo    ArticleRepository
	storage *storage.Storage
	events  *events.Publisher
	logger  logrus.FieldLogger
}

func NewArticleService(repo ArticleRepository, objectStorage *storage.Storage, publisher *events.Publisher, logger logrus.FieldLogger) *ArticleService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArticleService{
		repo:    repo,
		storage: objectStorage,
		events:  publisher,
		logger:  logger,
	}
}

// ListPublished returns published articles, newest publish date first.
func (s *ArticleService) ListPublished(ctx context.Context, query ArticleQuery) (ArticlePage, error) {
	return s.list(ctx, query, true)
}

// ListAll returns every article including drafts, newest first. Admin only.
func (s *ArticleService) ListAll(ctx context.Context, caller *types.Account, query ArticleQuery) (ArticlePage, error) {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return ArticlePage{}, err
	}
	return s.list(ctx, query, false)
}

// GetPublished returns a published article and counts the read.
func (s *ArticleService) GetPublished(ctx context.Context, id string) (types.Article, error) {
	if err := validateID(id); err != nil {
		return types.Article{}, err
	}
	article, err := s.repo.IncrementViews(ctx, id)
	if err != nil {
		return types.Article{}, wrapNotFound(err, "load article")
	}
	return article, nil
}

// Get returns any article, published or not. Admin only.
func (s *ArticleService) Get(ctx context.Context, caller *types.Account, id string) (types.Article, error) {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return types.Article{}, err
	}
	if err := validateID(id); err != nil {
		return types.Article{}, err
	}
	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Article{}, wrapNotFound(err, "load article")
	}
	return article, nil
}

func (s *ArticleService) Create(ctx context.Context, caller *types.Account, input ArticleInput) (types.Article, error) {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return types.Article{}, err
	}
	input = normalizeArticleInput(input, caller)
	if err := validateStruct(input); err != nil {
		return types.Article{}, err
	}

	article := types.Article{ID: uuid.NewString(), IsPublished: true}
	applyArticleInput(&article, input)

	created, err := s.repo.Create(ctx, article)
	if err != nil {
		return types.Article{}, fmt.Errorf("create article: %w", err)
	}
	s.events.Publish(ctx, events.ArticleCreated, created.ID, caller.ID, map[string]string{"category": string(created.Category)})
	return created, nil
}

// Update replaces the editable fields of an article. Omitted publish state
// and date are kept.
func (s *ArticleService) Update(ctx context.Context, caller *types.Account, id string, input ArticleInput) (types.Article, error) {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return types.Article{}, err
	}
	if err := validateID(id); err != nil {
		return types.Article{}, err
	}
	input = normalizeArticleInput(input, caller)
	if err := validateStruct(input); err != nil {
		return types.Article{}, err
	}

	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Article{}, wrapNotFound(err, "load article")
	}
	applyArticleInput(&article, input)

	updated, err := s.repo.Update(ctx, article)
	if err != nil {
		return types.Article{}, wrapNotFound(err, "update article")
	}
	s.events.Publish(ctx, events.ArticleUpdated, updated.ID, caller.ID, nil)
	return updated, nil
}

func (s *ArticleService) Delete(ctx context.Context, caller *types.Account, id string) error {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return wrapNotFound(err, "load article")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapNotFound(err, "delete article")
	}
	if article.ImageKey != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, article.ImageKey); err != nil {
			s.logger.WithError(err).WithField("key", article.ImageKey).Warn("failed to delete article image")
		}
	}
	s.events.Publish(ctx, events.ArticleDeleted, id, caller.ID, nil)
	return nil
}

// UploadImage stores an image for the article and returns the updated
// article. The object key is content addressed.
func (s *ArticleService) UploadImage(ctx context.Context, caller *types.Account, id, filename string, data []byte) (types.Article, error) {
	if err := requireCaller(caller, types.RoleAdmin); err != nil {
		return types.Article{}, err
	}
	if s.storage == nil {
		return types.Article{}, ErrStorageNotConfigured
	}
	if err := validateID(id); err != nil {
		return types.Article{}, err
	}
	if len(data) == 0 {
		return types.Article{}, newValidationError("image", "is required")
	}
	if len(data) > MaxImageBytes {
		return types.Article{}, newValidationError("image", fmt.Sprintf("must not exceed %d bytes", MaxImageBytes))
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	contentType, ok := imageContentTypes[ext]
	if !ok {
		return types.Article{}, newValidationError("image", "must be a jpg, jpeg, png, gif, or webp file")
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		contentType = sniffed
	}

	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Article{}, wrapNotFound(err, "load article")
	}

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("articles/%s/%s%s", id, hex.EncodeToString(sum[:]), ext)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return types.Article{}, fmt.Errorf("store image: %w", err)
	}
	if err := s.repo.SetImageKey(ctx, id, key); err != nil {
		return types.Article{}, wrapNotFound(err, "set image key")
	}
	if article.ImageKey != "" && article.ImageKey != key {
		if err := s.storage.Delete(ctx, article.ImageKey); err != nil {
			s.logger.WithError(err).WithField("key", article.ImageKey).Warn("failed to delete replaced article image")
		}
	}

	article.ImageKey = key
	s.events.Publish(ctx, events.ArticleUpdated, id, caller.ID, map[string]string{"image_key": key})
	return article, nil
}

// OpenImage streams the uploaded image of a published article.
func (s *ArticleService) OpenImage(ctx context.Context, id string) (*storage.Object, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	article, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "load article")
	}
	if !article.IsPublished || article.ImageKey == "" {
		return nil, ErrNotFound
	}
	obj, err := s.storage.Open(ctx, article.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	return obj, nil
}

func (s *ArticleService) list(ctx context.Context, query ArticleQuery, publishedOnly bool) (ArticlePage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return ArticlePage{}, newValidationError("page", fmt.Sprintf("must not exceed %d", MaxPage))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultArticleLimit
	}
	if limit > maxArticleLimit {
		limit = maxArticleLimit
	}

	category := types.Category(strings.TrimSpace(query.Category))
	if category != "" && !category.Valid() {
		return ArticlePage{}, newValidationError("category", "must be one of [Technology Politics Sports Entertainment]")
	}
	search := strings.TrimSpace(query.Search)
	if utf8.RuneCountInString(search) > 100 {
		return ArticlePage{}, newValidationError("search", "must not exceed 100 characters")
	}

	articles, total, err := s.repo.List(ctx, types.ArticleFilter{
		PublishedOnly: publishedOnly,
		Category:      category,
		Search:        search,
		Offset:        (page - 1) * limit,
		Limit:         limit,
	})
	if err != nil {
		return ArticlePage{}, fmt.Errorf("list articles: %w", err)
	}
	return ArticlePage{
		Articles: articles,
		Page:     page,
		Limit:    limit,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func normalizeArticleInput(input ArticleInput, caller *types.Account) ArticleInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Content = strings.TrimSpace(input.Content)
	input.Author = strings.TrimSpace(input.Author)
	if input.Author == "" && caller != nil {
		input.Author = caller.Username
	}
	input.Category = strings.TrimSpace(input.Category)
	input.Image = strings.TrimSpace(input.Image)
	input.Summary = strings.TrimSpace(input.Summary)

	tags := make([]string, 0, len(input.Tags))
	for _, tag := range input.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	input.Tags = tags
	return input
}

func applyArticleInput(article *types.Article, input ArticleInput) {
	article.Title = input.Title
	article.Content = input.Content
	article.Author = input.Author
	article.Category = types.Category(input.Category)
	article.Image = input.Image
	article.Tags = input.Tags
	article.Summary = input.Summary
	if article.Summary == "" {
		article.Summary = defaultSummary(input.Content)
	}
	if input.IsPublished != nil {
		article.IsPublished = *input.IsPublished
	}
	if input.PublishDate != nil {
		article.PublishDate = *input.PublishDate
	}
}

func defaultSummary(content string) string {
	runes := []rune(content)
	if len(runes) > summaryLength {
		runes = runes[:summaryLength]
	}
	return string(runes) + "..."
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return newValidationError("id", "must be a valid article id")
	}
	return nil
}
