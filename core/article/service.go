package article

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/kenamplan/backend/core"
)

var (
	// errors
	ErrNotFound   = errors.New("article not found")
	ErrSlugExists = errors.New("this slug is already in use")
)

type (
	Repository interface {
		CreateArticle(ctx context.Context, a Article, exec ...core.DBExecutor) (Article, error)
		QueryArticles(ctx context.Context, filter *QueryFilter, page core.PageFilter, exec ...core.DBExecutor) ([]Article, int, error)
		GetArticle(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Article, error)
		UpdateArticle(ctx context.Context, a Article, exec ...core.DBExecutor) (Article, error)
		DeleteArticle(ctx context.Context, id string, exec ...core.DBExecutor) error
		SlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, na NewArticle, authorID string) (Article, error)
		Query(ctx context.Context, filter *QueryFilter, page core.PageFilter) (core.Page[Article], error)
		GetByID(ctx context.Context, id string) (Article, error)
		GetBySlug(ctx context.Context, slug string) (Article, error)
		Update(ctx context.Context, id string, ua UpdateArticle) (Article, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) checkSlug(ctx context.Context, slug, exclID string) error {
	exists, err := svc.repo.SlugExists(ctx, slug, exclID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking article slug")
	}
	if exists {
		return core.NewFieldValidationError("slug", ErrSlugExists.Error())
	}
	return nil
}

func (svc *service) Create(ctx context.Context, na NewArticle, authorID string) (Article, error) {
	if err := svc.checkSlug(ctx, na.Slug, ""); err != nil {
		return Article{}, err
	}
	now := time.Now().UTC()
	a := Article{
		Title:      na.Title,
		Slug:       na.Slug,
		Excerpt:    na.Excerpt,
		Content:    na.Content,
		CoverImage: na.CoverImage,
		AuthorID:   authorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	a.publish(na.IsPublished, now)
	return svc.repo.CreateArticle(ctx, a)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, page core.PageFilter) (core.Page[Article], error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	articles, count, err := svc.repo.QueryArticles(ctx, filter, page)
	if err != nil {
		return core.Page[Article]{}, err
	}
	return core.NewPage(articles, count, page), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Article, error) {
	return svc.repo.GetArticle(ctx, GetFilter{ID: id})
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Article, error) {
	return svc.repo.GetArticle(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateArticle) (Article, error) {
	a, err := svc.GetByID(ctx, id)
	if err != nil {
		return Article{}, err
	}
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Slug != nil && *ua.Slug != a.Slug {
		if err = svc.checkSlug(ctx, *ua.Slug, a.ID); err != nil {
			return Article{}, err
		}
		a.Slug = *ua.Slug
	}
	if ua.Excerpt != nil {
		a.Excerpt = core.CleanString(*ua.Excerpt)
	}
	if ua.Content != nil {
		a.Content = *ua.Content
	}
	if ua.CoverImage != nil {
		a.CoverImage = core.CleanString(*ua.CoverImage)
	}
	now := time.Now().UTC()
	if ua.IsPublished != nil {
		a.publish(*ua.IsPublished, now)
	}
	a.UpdatedAt = now
	return svc.repo.UpdateArticle(ctx, a)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.GetByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteArticle(ctx, id)
}
