// Package pg persists articles and user accounts in Postgres. Article
// projections, alias lists and event trails are stored as jsonb; concurrent
// article mutations are serialized with a version compare-and-set.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/article"
	"anonpress.org/internal/ids"
)

type Store struct {
	db *sql.DB
}

var _ article.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const articleColumns = `object_id, category, author, date_published, section, url, headline,
	keywords, raw_text, hash, auto_anonymized_text, auto_anonymized_aliases,
	manual_anonymized_text, manual_anonymized_aliases, events, version`

func (s *Store) Create(ctx context.Context, draft article.Draft, author, mode string) (article.Article, error) {
	if draft.Source == "" {
		return article.Article{}, fmt.Errorf("%w: source is required", article.ErrInvalidData)
	}
	if draft.RawText == "" {
		return article.Article{}, fmt.Errorf("%w: raw_text is required", article.ErrInvalidData)
	}
	if mode == "" {
		mode = article.ModeSingle
	}

	a := article.Article{
		ObjectID:      ids.New(),
		Source:        draft.Source,
		Author:        draft.Author,
		DatePublished: draft.DatePublished,
		Section:       draft.Section,
		URL:           draft.URL,
		Headline:      draft.Headline,
		Keywords:      draft.Keywords,
		RawText:       draft.RawText,
		Hash:          article.TextHash(draft.RawText),
		Events:        []article.Event{article.NewEvent(article.EventInsertion, author, mode)},
		Version:       1,
	}

	keywords, events, autoAliases, manualAliases, err := encodeArticle(a)
	if err != nil {
		return article.Article{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		insert into articles (`+articleColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, a.ObjectID, a.Source, a.Author, a.DatePublished, a.Section, a.URL, a.Headline,
		keywords, a.RawText, int64(a.Hash), a.AutoAnonymizedText, autoAliases,
		a.ManualAnonymizedText, manualAliases, events, a.Version)
	if err != nil {
		return article.Article{}, err
	}
	return a, nil
}

func (s *Store) Get(ctx context.Context, category, id string) (article.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+articleColumns+`
		from articles where category=$1 and object_id=$2
	`, category, id)
	return scanArticle(row)
}

func (s *Store) List(ctx context.Context, filter article.Filter) ([]article.Article, error) {
	query := `select ` + articleColumns + ` from articles`
	var (
		clauses []string
		args    []any
	)
	if len(filter.Categories) > 0 {
		clauses = append(clauses, "category = any("+placeholderArray(&args, filter.Categories)+")")
	}
	if len(filter.Sections) > 0 {
		clauses = append(clauses, "section = any("+placeholderArray(&args, filter.Sections)+")")
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " where " + clause
		} else {
			query += " and " + clause
		}
	}
	query += " order by date_published desc, object_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []article.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Update(ctx context.Context, category, id string, upd article.Update, author string) (article.Article, error) {
	return s.mutate(ctx, category, id, func(a *article.Article) error {
		upd.Apply(a)
		a.Events = append(a.Events, article.NewEvent(article.EventModification, author, article.ModeSingle))
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, category, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from articles where category=$1 and object_id=$2`, category, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return article.ErrNotFound
	}
	return nil
}

func (s *Store) SetAutoAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (article.Article, error) {
	return s.mutate(ctx, category, id, func(a *article.Article) error {
		a.AutoAnonymizedText = text
		a.AutoAnonymizedAliases = aliases
		a.Events = append(a.Events, article.NewEvent(article.EventAutoAnonymization, author, article.ModeSingle))
		return nil
	})
}

func (s *Store) SetManualAnonymization(ctx context.Context, category, id, text string, aliases []alias.Alias, author string) (article.Article, error) {
	return s.mutate(ctx, category, id, func(a *article.Article) error {
		a.ManualAnonymizedText = text
		a.ManualAnonymizedAliases = aliases
		a.Events = append(a.Events, article.NewEvent(article.EventManualAnonymization, author, article.ModeSingle))
		return nil
	})
}

// mutate applies fn to the current row and writes it back guarded by the
// version column. A lost race surfaces as ErrConflict rather than a silently
// dropped event.
func (s *Store) mutate(ctx context.Context, category, id string, fn func(*article.Article) error) (article.Article, error) {
	a, err := s.Get(ctx, category, id)
	if err != nil {
		return article.Article{}, err
	}
	readVersion := a.Version
	if err := fn(&a); err != nil {
		return article.Article{}, err
	}
	a.Version = readVersion + 1

	keywords, events, autoAliases, manualAliases, err := encodeArticle(a)
	if err != nil {
		return article.Article{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		update articles set
			author=$1, date_published=$2, section=$3, url=$4, headline=$5,
			keywords=$6, raw_text=$7, hash=$8,
			auto_anonymized_text=$9, auto_anonymized_aliases=$10,
			manual_anonymized_text=$11, manual_anonymized_aliases=$12,
			events=$13, version=$14, updated_at=now()
		where category=$15 and object_id=$16 and version=$17
	`, a.Author, a.DatePublished, a.Section, a.URL, a.Headline,
		keywords, a.RawText, int64(a.Hash),
		a.AutoAnonymizedText, autoAliases,
		a.ManualAnonymizedText, manualAliases,
		events, a.Version, category, id, readVersion)
	if err != nil {
		return article.Article{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return article.Article{}, err
	}
	if n == 0 {
		return article.Article{}, article.ErrConflict
	}
	return a, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (article.Article, error) {
	var (
		a             article.Article
		hash          int64
		keywords      []byte
		events        []byte
		autoAliases   []byte
		manualAliases []byte
	)
	err := row.Scan(&a.ObjectID, &a.Source, &a.Author, &a.DatePublished, &a.Section,
		&a.URL, &a.Headline, &keywords, &a.RawText, &hash,
		&a.AutoAnonymizedText, &autoAliases,
		&a.ManualAnonymizedText, &manualAliases,
		&events, &a.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return article.Article{}, article.ErrNotFound
	}
	if err != nil {
		return article.Article{}, err
	}
	a.Hash = uint64(hash)
	if err := decodeJSONColumn(keywords, &a.Keywords); err != nil {
		return article.Article{}, err
	}
	if err := decodeJSONColumn(events, &a.Events); err != nil {
		return article.Article{}, err
	}
	if err := decodeJSONColumn(autoAliases, &a.AutoAnonymizedAliases); err != nil {
		return article.Article{}, err
	}
	if err := decodeJSONColumn(manualAliases, &a.ManualAnonymizedAliases); err != nil {
		return article.Article{}, err
	}
	return a, nil
}

func encodeArticle(a article.Article) (keywords, events, autoAliases, manualAliases []byte, err error) {
	if keywords, err = encodeJSONColumn(a.Keywords); err != nil {
		return
	}
	if events, err = encodeJSONColumn(a.Events); err != nil {
		return
	}
	if autoAliases, err = encodeJSONColumn(a.AutoAnonymizedAliases); err != nil {
		return
	}
	manualAliases, err = encodeJSONColumn(a.ManualAnonymizedAliases)
	return
}

func encodeJSONColumn(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return data, nil
}

func decodeJSONColumn(data []byte, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode jsonb: %w", err)
	}
	return nil
}

// placeholderArray appends values to args and returns the matching
// array($n,...) expression.
func placeholderArray(args *[]any, values []string) string {
	expr := "array["
	for i, v := range values {
		*args = append(*args, v)
		if i > 0 {
			expr += ","
		}
		expr += "$" + strconv.Itoa(len(*args))
	}
	return expr + "]"
}
