package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/article"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func articleRow(t *testing.T, a article.Article) *sqlmock.Rows {
	t.Helper()
	keywords, events, autoAliases, manualAliases, err := encodeArticle(a)
	if err != nil {
		t.Fatalf("encodeArticle: %v", err)
	}
	return sqlmock.NewRows([]string{
		"object_id", "category", "author", "date_published", "section", "url", "headline",
		"keywords", "raw_text", "hash", "auto_anonymized_text", "auto_anonymized_aliases",
		"manual_anonymized_text", "manual_anonymized_aliases", "events", "version",
	}).AddRow(
		a.ObjectID, a.Source, a.Author, a.DatePublished, a.Section, a.URL, a.Headline,
		keywords, a.RawText, int64(a.Hash), a.AutoAnonymizedText, autoAliases,
		a.ManualAnonymizedText, manualAliases, events, a.Version,
	)
}

func fixtureArticle() article.Article {
	return article.Article{
		ObjectID:      "art-1",
		Source:        "press",
		Author:        "reporter",
		DatePublished: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Section:       "world",
		Headline:      "UN meeting",
		Keywords:      []string{"politics"},
		RawText:       "The UN is said to meet in New-York according to Donald Trump.",
		Hash:          article.TextHash("The UN is said to meet in New-York according to Donald Trump."),
		Events:        []article.Event{{Type: article.EventInsertion, Author: "alice", Date: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}},
		Version:       1,
	}
}

func TestCreateInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into articles").
		WithArgs(
			sqlmock.AnyArg(), "press", "reporter", sqlmock.AnyArg(), "world", "", "UN meeting",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg(),
			"", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a, err := store.Create(context.Background(), article.Draft{
		Source:   "press",
		Author:   "reporter",
		Section:  "world",
		Headline: "UN meeting",
		RawText:  "The UN is said to meet in New-York according to Donald Trump.",
	}, "alice", article.ModeSingle)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ObjectID == "" {
		t.Fatal("missing object id")
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
	if len(a.Events) != 1 || a.Events[0].Type != article.EventInsertion {
		t.Fatalf("unexpected events: %+v", a.Events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Create(context.Background(), article.Draft{RawText: "x"}, "alice", article.ModeSingle)
	if !errors.Is(err, article.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select object_id").
		WithArgs("press", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "press", "missing")
	if !errors.Is(err, article.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRoundtrip(t *testing.T) {
	store, mock := newMockStore(t)
	want := fixtureArticle()
	want.AutoAnonymizedText = "The ORG_0 is said to meet in LOC_0 according to PER_0."
	want.AutoAnonymizedAliases = []alias.Alias{{Text: "UN", Alias: "ORG_0", AliasType: "ORG"}}

	mock.ExpectQuery("select object_id").
		WithArgs("press", "art-1").
		WillReturnRows(articleRow(t, want))

	got, err := store.Get(context.Background(), "press", "art-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ObjectID != want.ObjectID || got.Hash != want.Hash {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.AutoAnonymizedText != want.AutoAnonymizedText {
		t.Fatalf("auto text = %q", got.AutoAnonymizedText)
	}
	if len(got.AutoAnonymizedAliases) != 1 || got.AutoAnonymizedAliases[0].Alias != "ORG_0" {
		t.Fatalf("aliases mismatch: %+v", got.AutoAnonymizedAliases)
	}
	if len(got.Events) != 1 || got.Events[0].Type != article.EventInsertion {
		t.Fatalf("events mismatch: %+v", got.Events)
	}
}

func TestMutationConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select object_id").
		WithArgs("press", "art-1").
		WillReturnRows(articleRow(t, fixtureArticle()))
	mock.ExpectExec("update articles set").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.SetAutoAnonymization(context.Background(), "press", "art-1", "masked", nil, "carol")
	if !errors.Is(err, article.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMutationAppendsEventAndBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select object_id").
		WithArgs("press", "art-1").
		WillReturnRows(articleRow(t, fixtureArticle()))
	mock.ExpectExec("update articles set").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.SetManualAnonymization(context.Background(), "press", "art-1", "The ORG_0 met.", []alias.Alias{
		{Text: "UN", Alias: "ORG_0", AliasType: "ORG"},
	}, "carol")
	if err != nil {
		t.Fatalf("SetManualAnonymization: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("version = %d, want 2", got.Version)
	}
	last := got.Events[len(got.Events)-1]
	if last.Type != article.EventManualAnonymization || last.Author != "carol" {
		t.Fatalf("unexpected event: %+v", last)
	}
}

func TestDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from articles").
		WithArgs("press", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), "press", "missing")
	if !errors.Is(err, article.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByCategory(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select object_id").
		WithArgs("press").
		WillReturnRows(articleRow(t, fixtureArticle()))

	items, err := store.List(context.Background(), article.Filter{Categories: []string{"press"}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Source != "press" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestEncodeDecodeJSONColumns(t *testing.T) {
	a := fixtureArticle()
	a.ManualAnonymizedAliases = []alias.Alias{{Text: "UN", Alias: "ORG_0", AliasType: "ORG"}}

	_, events, _, manual, err := encodeArticle(a)
	if err != nil {
		t.Fatalf("encodeArticle: %v", err)
	}

	var decodedEvents []article.Event
	if err := json.Unmarshal(events, &decodedEvents); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(decodedEvents) != 1 || decodedEvents[0].Type != article.EventInsertion {
		t.Fatalf("events mismatch: %+v", decodedEvents)
	}

	var decodedAliases []alias.Alias
	if err := json.Unmarshal(manual, &decodedAliases); err != nil {
		t.Fatalf("decode aliases: %v", err)
	}
	if decodedAliases[0].Alias != "ORG_0" {
		t.Fatalf("aliases mismatch: %+v", decodedAliases)
	}
}
