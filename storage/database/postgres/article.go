package pgrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
)

var articleColumns = []string{
	"id", "title", "slug", "excerpt", "content", "cover_image", "is_published",
	"published_at", "author_id", "created_at", "updated_at",
}

type articleRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Slug        string      `db:"slug"`
	Excerpt     string      `db:"excerpt"`
	Content     string      `db:"content"`
	CoverImage  string      `db:"cover_image"`
	IsPublished bool        `db:"is_published"`
	PublishedAt null.Time   `db:"published_at"`
	AuthorID    null.String `db:"author_id"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type articleRepository struct {
	repo
}

var _ article.Repository = (*articleRepository)(nil) // interface compliance check

func NewArticleRepository(exec core.DBExecutor) article.Repository {
	return &articleRepository{repo{exec: exec}}
}

func (repo *articleRepository) CreateArticle(ctx context.Context, a article.Article, exec ...core.DBExecutor) (article.Article, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	row := boilArticle(a)
	q := psql.Insert("articles").Columns(articleColumns...).Values(
		row.ID, row.Title, row.Slug, row.Excerpt, row.Content, row.CoverImage, row.IsPublished,
		row.PublishedAt, row.AuthorID, row.CreatedAt, row.UpdatedAt,
	)
	if _, err := execStmt(ctx, repo.getExec(exec), q); err != nil {
		return article.Article{}, mapArticleErr(err, "inserting article")
	}
	return a, nil
}

func (repo *articleRepository) QueryArticles(ctx context.Context, filter *article.QueryFilter, page core.PageFilter, exec ...core.DBExecutor) ([]article.Article, int, error) {
	conds := sq.And{}
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, sq.Expr("(title ILIKE ? OR excerpt ILIKE ? OR content ILIKE ?)", val, val, val))
		}
		if filter.IsPublished != nil {
			conds = append(conds, sq.Eq{"is_published": *filter.IsPublished})
		}
	}
	exe := repo.getExec(exec)

	var count int
	if err := getRow(ctx, exe, &count, psql.Select("COUNT(*)").From("articles").Where(conds)); err != nil {
		return nil, 0, errors.Wrap(err, "counting articles")
	}

	q := psql.Select(articleColumns...).From("articles").Where(conds).
		OrderBy("COALESCE(published_at, created_at) DESC")
	var rows []articleRow
	if err := selectRows(ctx, exe, &rows, pageOf(q, &page)); err != nil {
		return nil, 0, errors.Wrap(err, "querying articles")
	}
	articles := make([]article.Article, 0, len(rows))
	for _, row := range rows {
		articles = append(articles, unboilArticle(row))
	}
	return articles, count, nil
}

func (repo *articleRepository) GetArticle(ctx context.Context, filter article.GetFilter, exec ...core.DBExecutor) (article.Article, error) {
	q := psql.Select(articleColumns...).From("articles")
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return article.Article{}, article.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"slug": filter.Slug})
	default:
		return article.Article{}, article.ErrNotFound
	}

	var row articleRow
	if err := getRow(ctx, repo.getExec(exec), &row, q); err != nil {
		return article.Article{}, trapNoRowsErr(err, article.ErrNotFound, "getting article")
	}
	return unboilArticle(row), nil
}

func (repo *articleRepository) UpdateArticle(ctx context.Context, a article.Article, exec ...core.DBExecutor) (article.Article, error) {
	row := boilArticle(a)
	q := psql.Update("articles").SetMap(map[string]interface{}{
		"title":        row.Title,
		"slug":         row.Slug,
		"excerpt":      row.Excerpt,
		"content":      row.Content,
		"cover_image":  row.CoverImage,
		"is_published": row.IsPublished,
		"published_at": row.PublishedAt,
		"updated_at":   row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID})

	n, err := execStmt(ctx, repo.getExec(exec), q)
	if err != nil {
		return article.Article{}, mapArticleErr(err, "updating article")
	}
	if n == 0 {
		return article.Article{}, article.ErrNotFound
	}
	return a, nil
}

func (repo *articleRepository) DeleteArticle(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return article.ErrNotFound
	}
	n, err := execStmt(ctx, repo.getExec(exec), psql.Delete("articles").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting article")
	}
	if n == 0 {
		return article.ErrNotFound
	}
	return nil
}

func (repo *articleRepository) SlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	q := psql.Select("1").From("articles").Where(sq.Eq{"slug": slug}).Limit(1)
	if validID(excludedID) {
		q = q.Where(sq.NotEq{"id": excludedID})
	}
	var one int
	err := getRow(ctx, repo.getExec(exec), &one, q)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, errors.Wrap(err, "checking article slug")
	}
}

func mapArticleErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return core.NewFieldValidationError("slug", article.ErrSlugExists.Error())
	}
	return errors.Wrap(err, msg)
}

func boilArticle(a article.Article) articleRow {
	return articleRow{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Excerpt:     a.Excerpt,
		Content:     a.Content,
		CoverImage:  a.CoverImage,
		IsPublished: a.IsPublished,
		PublishedAt: null.TimeFromPtr(a.PublishedAt),
		AuthorID:    null.NewString(a.AuthorID, validID(a.AuthorID)),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func unboilArticle(row articleRow) article.Article {
	a := article.Article{
		ID:          row.ID,
		Title:       row.Title,
		Slug:        row.Slug,
		Excerpt:     row.Excerpt,
		Content:     row.Content,
		CoverImage:  row.CoverImage,
		IsPublished: row.IsPublished,
		AuthorID:    row.AuthorID.String,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.PublishedAt.Valid {
		t := row.PublishedAt.Time.UTC()
		a.PublishedAt = &t
	}
	return a
}
