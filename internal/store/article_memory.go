package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newsdesk/apiserver/types"
)

// MemoryArticleRepository keeps articles in process memory.
type MemoryArticleRepository struct {
	mu       sync.Mutex
	articles map[string]types.Article
}

func NewMemoryArticleRepository() *MemoryArticleRepository {
	return &MemoryArticleRepository{articles: make(map[string]types.Article)}
}

func (r *MemoryArticleRepository) List(ctx context.Context, filter types.ArticleFilter) ([]types.Article, int, error) {
	offset, limit := normalizePage(filter.Offset, filter.Limit)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	r.mu.Lock()
	matched := make([]types.Article, 0, len(r.articles))
	for _, article := range r.articles {
		if filter.PublishedOnly && !article.IsPublished {
			continue
		}
		if filter.Category != "" && article.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(article.Title), search) &&
			!strings.Contains(strings.ToLower(article.Content), search) {
			continue
		}
		matched = append(matched, cloneArticle(article))
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].CreatedAt, matched[j].CreatedAt
		if filter.PublishedOnly {
			a, b = matched[i].PublishDate, matched[j].PublishDate
		}
		if !a.Equal(b) {
			return a.After(b)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []types.Article{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryArticleRepository) Get(ctx context.Context, id string) (types.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	article, ok := r.articles[id]
	if !ok {
		return types.Article{}, ErrNotFound
	}
	return cloneArticle(article), nil
}

func (r *MemoryArticleRepository) IncrementViews(ctx context.Context, id string) (types.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	article, ok := r.articles[id]
	if !ok || !article.IsPublished {
		return types.Article{}, ErrNotFound
	}
	article.Views++
	r.articles[id] = article
	return cloneArticle(article), nil
}

func (r *MemoryArticleRepository) Create(ctx context.Context, article types.Article) (types.Article, error) {
	now := time.Now()
	article.CreatedAt = now
	article.UpdatedAt = now
	if article.PublishDate.IsZero() {
		article.PublishDate = now
	}
	article.Tags = nonNilTags(article.Tags)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.articles[article.ID]; exists {
		return types.Article{}, ErrDuplicate
	}
	r.articles[article.ID] = cloneArticle(article)
	return cloneArticle(article), nil
}

func (r *MemoryArticleRepository) Update(ctx context.Context, article types.Article) (types.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.articles[article.ID]
	if !ok {
		return types.Article{}, ErrNotFound
	}
	article.UpdatedAt = time.Now()
	article.Tags = nonNilTags(article.Tags)
	article.CreatedAt = existing.CreatedAt
	article.Views = existing.Views
	article.ImageKey = existing.ImageKey
	r.articles[article.ID] = cloneArticle(article)
	return cloneArticle(article), nil
}

func (r *MemoryArticleRepository) SetImageKey(ctx context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	article, ok := r.articles[id]
	if !ok {
		return ErrNotFound
	}
	article.ImageKey = key
	article.UpdatedAt = time.Now()
	r.articles[id] = article
	return nil
}

func (r *MemoryArticleRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.articles[id]; !ok {
		return ErrNotFound
	}
	delete(r.articles, id)
	return nil
}

func cloneArticle(a types.Article) types.Article {
	a.Tags = append([]string(nil), a.Tags...)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return a
}
