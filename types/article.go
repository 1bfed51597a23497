package types

import "time"

// Category groups articles on the public site.
type Category string

const (
	CategoryTechnology    Category = "Technology"
	CategoryPolitics      Category = "Politics"
	CategorySports        Category = "Sports"
	CategoryEntertainment Category = "Entertainment"
)

// Categories lists every supported category in display order.
var Categories = []Category{
	CategoryTechnology,
	CategoryPolitics,
	CategorySports,
	CategoryEntertainment,
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Article represents a news article in the newsdesk system.
// It contains the article body, editorial metadata, and readership counters.
type Article struct {
	// ID is the unique identifier of the article.
	ID string `json:"id" db:"id" bson:"_id"`

	// Title is the headline of the article.
	Title string `json:"title" db:"title" bson:"title"`

	// Content is the full article body.
	Content string `json:"content" db:"content" bson:"content"`

	// Author is the byline shown with the article.
	Author string `json:"author" db:"author" bson:"author"`

	// Category is the section the article is published in.
	Category Category `json:"category" db:"category" bson:"category"`

	// Image is an optional external image URL.
	Image string `json:"image,omitempty" db:"image" bson:"image,omitempty"`

	// ImageKey is the object storage key of an uploaded image, if any.
	ImageKey string `json:"image_key,omitempty" db:"image_key" bson:"image_key,omitempty"`

	// IsPublished controls visibility on the public site.
	IsPublished bool `json:"is_published" db:"is_published" bson:"is_published"`

	// Views counts how many times the article was read on the public site.
	Views int64 `json:"views" db:"views" bson:"views"`

	// Tags are lowercase free-form labels used for discovery.
	Tags []string `json:"tags" db:"tags" bson:"tags"`

	// Summary is a short teaser. It defaults to the start of Content.
	Summary string `json:"summary" db:"summary" bson:"summary"`

	// PublishDate orders articles on the public site.
	PublishDate time.Time `json:"publish_date" db:"publish_date" bson:"publish_date"`

	// CreatedAt is the timestamp at which the article was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the article.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// ArticleFilter narrows an article listing.
type ArticleFilter struct {
	// PublishedOnly restricts the listing to published articles, ordered by
	// publish date. Otherwise all articles are listed by creation date.
	PublishedOnly bool

	// Category restricts the listing to one category when non-empty.
	Category Category

	// Search is a free-text query over title and content.
	Search string

	Offset int
	Limit  int
}
