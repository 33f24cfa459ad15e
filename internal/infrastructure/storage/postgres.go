package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    link TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    summary TEXT NOT NULL,
    category TEXT NOT NULL,
    relevance TEXT NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}',
    published_at TIMESTAMPTZ NOT NULL,
    image_url TEXT,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists enriched articles. The UNIQUE constraint on link is
// the final arbiter for deduplication across concurrent runs.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ArticleStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Ensure creates the articles table when missing.
func (s *PostgresStore) Ensure(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert persists one article, assigning id and ingested_at. A duplicate
// link yields domain.ErrConflict instead of a second record.
func (s *PostgresStore) Insert(ctx context.Context, article domain.Article) (domain.Article, error) {
	query, args, err := s.builder.
		Insert("articles").
		Columns("link", "title", "summary", "category", "relevance", "tags", "published_at", "image_url").
		Values(
			article.Link,
			article.Title,
			article.Summary,
			article.Category,
			string(article.Relevance),
			pq.Array(article.Tags),
			article.PublishedAt,
			nullString(article.ImageURL),
		).
		Suffix("ON CONFLICT (link) DO NOTHING RETURNING id, ingested_at").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build insert: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&article.ID, &article.IngestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, domain.ErrConflict
		}
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}

	return article, nil
}

// ExistingLinks reports which of the given links are already stored.
func (s *PostgresStore) ExistingLinks(ctx context.Context, links []string) (map[string]bool, error) {
	result := make(map[string]bool, len(links))
	if len(links) == 0 {
		return result, nil
	}

	query, args, err := s.builder.
		Select("link").
		From("articles").
		Where(sq.Expr("link = ANY(?)", pq.StringArray(links))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build links query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		result[link] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("links iteration: %w", err)
	}

	return result, nil
}

// Query returns live articles matching the filter, most recently published
// first with id descending as the tie breaker.
func (s *PostgresStore) Query(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error) {
	builder := s.builder.
		Select("id", "link", "title", "summary", "category", "relevance", "tags", "published_at", "image_url", "ingested_at").
		From("articles").
		OrderBy("published_at DESC", "id DESC")

	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Relevance != "" {
		builder = builder.Where(sq.Eq{"relevance": string(filter.Relevance)})
	}
	if filter.Start != nil {
		builder = builder.Where(sq.GtOrEq{"published_at": *filter.Start})
	}
	if filter.End != nil {
		builder = builder.Where(sq.LtOrEq{"published_at": *filter.End})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build articles query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("articles iteration: %w", err)
	}

	return articles, nil
}

// Categories lists every distinct category among live articles.
func (s *PostgresStore) Categories(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.
		Select("DISTINCT category").
		From("articles").
		OrderBy("category ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("categories iteration: %w", err)
	}

	return categories, nil
}

// Delete removes one article and reports whether it existed.
func (s *PostgresStore) Delete(ctx context.Context, id int64) (bool, error) {
	query, args, err := s.builder.Delete("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}

	return affected > 0, nil
}

// DeleteAll removes every article, returning the count removed.
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	query, args, err := s.builder.Delete("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete all: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete all articles: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all articles: %w", err)
	}

	return affected, nil
}

func scanArticle(rows *sql.Rows) (domain.Article, error) {
	var (
		article   domain.Article
		relevance string
		tags      pq.StringArray
		imageURL  sql.NullString
		published time.Time
	)

	if err := rows.Scan(
		&article.ID,
		&article.Link,
		&article.Title,
		&article.Summary,
		&article.Category,
		&relevance,
		&tags,
		&published,
		&imageURL,
		&article.IngestedAt,
	); err != nil {
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}

	article.Relevance = domain.RelevanceTier(relevance)
	article.Tags = []string(tags)
	article.PublishedAt = published
	article.ImageURL = imageURL.String

	return article, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
