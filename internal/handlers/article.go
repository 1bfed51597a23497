package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
	"github.com/sirupsen/logrus"
)

const (
	maxArticleLimit    = 50
	imageFormField     = "image"
	multipartOverheads = 1 << 20
)

// ArticleHandler serves the public news feed and its admin surface.
type ArticleHandler struct {
	articles *services.ArticleService
	logger   logrus.FieldLogger
}

// NewArticleHandler constructs an ArticleHandler with the provided dependencies.
func NewArticleHandler(articles *services.ArticleService, logger logrus.FieldLogger) *ArticleHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArticleHandler{articles: articles, logger: logger}
}

// ArticleRouter registers article routes on the given router.
func ArticleRouter(r chi.Router, articles *services.ArticleService, accounts *services.AccountService, logger logrus.FieldLogger) {
	handler := NewArticleHandler(articles, logger)
	requireAdmin := chi.Chain(RequireAuth(accounts, handler.logger), RequireRole(types.RoleAdmin))

	r.Get("/", handler.List)
	r.With(requireAdmin...).Get("/admin/all", handler.ListAll)
	r.With(requireAdmin...).Post("/", handler.Create)

	r.Route("/{articleID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Get("/image", handler.GetImage)
		r.With(requireAdmin...).Put("/", handler.Update)
		r.With(requireAdmin...).Delete("/", handler.Delete)
		r.With(requireAdmin...).Post("/image", handler.UploadImage)
	})
}

// List returns published articles.
func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	query, ok := parseArticleQuery(w, r)
	if !ok {
		return
	}
	page, err := h.articles.ListPublished(r.Context(), query)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list articles")
		return
	}
	writeJSON(w, http.StatusOK, newArticleListResponse(page))
}

// ListAll returns every article including drafts.
func (h *ArticleHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	query, ok := parseArticleQuery(w, r)
	if !ok {
		return
	}
	page, err := h.articles.ListAll(r.Context(), accountFromContext(r.Context()), query)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list articles")
		return
	}
	writeJSON(w, http.StatusOK, newArticleListResponse(page))
}

// Get returns a published article and counts the view.
func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	article, err := h.articles.GetPublished(r.Context(), chi.URLParam(r, "articleID"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load article")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.ArticleInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	article, err := h.articles.Create(r.Context(), accountFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create article")
		return
	}
	writeJSON(w, http.StatusCreated, article)
}

func (h *ArticleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req services.ArticleInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request")
		return
	}

	article, err := h.articles.Update(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "articleID"), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update article")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.articles.Delete(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "articleID")); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete article")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a multipart form with the image in the "image" field.
func (h *ArticleHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageBytes+multipartOverheads)
	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "missing image")
		return
	}
	defer file.Close()

	data, err := readFileLimited(file, services.MaxImageBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "image too large")
		return
	}

	article, err := h.articles.UploadImage(r.Context(), accountFromContext(r.Context()), chi.URLParam(r, "articleID"), header.Filename, data)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to upload image")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// GetImage streams the uploaded image of a published article.
func (h *ArticleHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	obj, err := h.articles.OpenImage(r.Context(), chi.URLParam(r, "articleID"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load image")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.WithError(err).Warn("failed to stream image")
	}
}

type ArticleListResponse struct {
	Items []types.Article `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
	Pages int             `json:"pages"`
}

func newArticleListResponse(page services.ArticlePage) ArticleListResponse {
	return ArticleListResponse{
		Items: page.Articles,
		Page:  page.Page,
		Limit: page.Limit,
		Total: page.Total,
		Pages: page.Pages,
	}
}

func parseArticleQuery(w http.ResponseWriter, r *http.Request) (services.ArticleQuery, bool) {
	page, limit, err := parsePagination(r, maxArticleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return services.ArticleQuery{}, false
	}
	values := r.URL.Query()
	category := strings.TrimSpace(values.Get("category"))
	if strings.EqualFold(category, "all") {
		category = ""
	}
	return services.ArticleQuery{
		Category: category,
		Search:   strings.TrimSpace(values.Get("search")),
		Page:     page,
		Limit:    limit,
	}, true
}
