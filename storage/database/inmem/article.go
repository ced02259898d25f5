package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/article"
)

type articleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) article.Repository {
	return &articleRepository{db: db}
}

func (repo *articleRepository) CreateArticle(_ context.Context, a article.Article, exec ...core.DBExecutor) (article.Article, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if a.ID == "" {
		a.ID = newID()
	}
	put(repo.db.articles, a.ID, a, exec)
	return a, nil
}

func (repo *articleRepository) QueryArticles(_ context.Context, filter *article.QueryFilter, page core.PageFilter, _ ...core.DBExecutor) ([]article.Article, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	articles := make([]article.Article, 0, len(repo.db.articles))
	for _, a := range repo.db.articles {
		if filter != nil {
			if filter.Search != "" && !containsAny(strings.ToLower(filter.Search), a.Title, a.Excerpt, a.Content) {
				continue
			}
			if filter.IsPublished != nil && a.IsPublished != *filter.IsPublished {
				continue
			}
		}
		articles = append(articles, a)
	}

	// most recent first
	sort.SliceStable(articles, func(i, j int) bool {
		return articleDate(articles[i]).After(articleDate(articles[j]))
	})
	return paginate(articles, &page), len(articles), nil
}

func articleDate(a article.Article) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

func (repo *articleRepository) GetArticle(_ context.Context, filter article.GetFilter, _ ...core.DBExecutor) (article.Article, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if a, ok := repo.db.articles[filter.ID]; ok {
			return a, nil
		}
		return article.Article{}, article.ErrNotFound
	}
	for _, a := range repo.db.articles {
		if filter.Slug != "" && a.Slug == filter.Slug {
			return a, nil
		}
	}
	return article.Article{}, article.ErrNotFound
}

func (repo *articleRepository) UpdateArticle(_ context.Context, a article.Article, exec ...core.DBExecutor) (article.Article, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.articles[a.ID]; !ok {
		return article.Article{}, article.ErrNotFound
	}
	put(repo.db.articles, a.ID, a, exec)
	return a, nil
}

func (repo *articleRepository) DeleteArticle(_ context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.articles[id]; !ok {
		return article.ErrNotFound
	}
	del(repo.db.articles, id, exec)
	return nil
}

func (repo *articleRepository) SlugExists(_ context.Context, slug, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, a := range repo.db.articles {
		if a.Slug == slug && a.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}
