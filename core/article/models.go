package article

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kenamplan/backend/core"
)

type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	CoverImage  string     `json:"cover_image"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at"` // UTC
	AuthorID    string     `json:"author_id"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// publish marks the article as published, stamping PublishedAt the first time only.
func (a *Article) publish(published bool, now time.Time) {
	a.IsPublished = published
	if published && a.PublishedAt == nil {
		a.PublishedAt = &now
	}
}

type NewArticle struct {
	Title       string `json:"title" validate:"required"`
	Slug        string `json:"slug" validate:"omitempty,slug"`
	Excerpt     string `json:"excerpt" validate:"max=500"`
	Content     string `json:"content" validate:"required"`
	CoverImage  string `json:"cover_image" validate:"omitempty,url|startswith=/"`
	IsPublished bool   `json:"is_published"`
}

func (na *NewArticle) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Slug = core.CleanString(na.Slug, true /* lower */)
	if na.Slug == "" {
		na.Slug = core.Slugify(na.Title)
	}
	na.Excerpt = core.CleanString(na.Excerpt)
	na.CoverImage = core.CleanString(na.CoverImage)
	return validate.Struct(na)
}

type UpdateArticle struct {
	Title       *string `json:"title" validate:"omitempty,notblank"`
	Slug        *string `json:"slug" validate:"omitempty,slug"`
	Excerpt     *string `json:"excerpt" validate:"omitempty,max=500"`
	Content     *string `json:"content" validate:"omitempty,notblank"`
	CoverImage  *string `json:"cover_image" validate:"omitempty,url|startswith=/"`
	IsPublished *bool   `json:"is_published"`
}

func (ua *UpdateArticle) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		title := core.CleanString(*ua.Title)
		ua.Title = &title
	}
	if ua.Slug != nil {
		slug := core.CleanString(*ua.Slug, true /* lower */)
		ua.Slug = &slug
	}
	return validate.Struct(ua)
}

type QueryFilter struct {
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Article. The first non-empty field wins.
type GetFilter struct {
	ID   string
	Slug string
}
