package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"compintel/internal/domain/entity"
	pg "compintel/internal/infra/adapter/persistence/postgres"
	"compintel/internal/repository"
)

func artRow(a *entity.Article) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "competitor", "url", "title", "content",
		"source", "published_at", "fingerprint", "collected_at",
	}).AddRow(
		a.ID, a.Competitor, a.URL, a.Title, a.Content,
		a.Source, a.PublishedAt, a.Fingerprint, a.CollectedAt,
	)
}

func testArticle() *entity.Article {
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	a := entity.Article{
		ID: 1, Competitor: "Acme", URL: "https://acme.example/launch",
		Title: "Acme launches widget", Content: "body",
		Source: "newsapi", PublishedAt: now, CollectedAt: now,
	}
	a = a.WithFingerprint()
	return &a
}

func TestArticleRepo_InsertIfNew_Inserted(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	a := testArticle()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO articles")).
		WithArgs(a.Competitor, a.URL, a.Title, a.Content, a.Source,
			a.PublishedAt, a.Fingerprint, a.CollectedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	repo := pg.NewArticleRepo(db)
	inserted, err := repo.InsertIfNew(context.Background(), a)
	if err != nil {
		t.Fatalf("InsertIfNew err=%v", err)
	}
	if !inserted {
		t.Fatal("expected inserted=true")
	}
	if a.ID != 42 {
		t.Errorf("expected ID backfilled to 42, got %d", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArticleRepo_InsertIfNew_Conflict(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	a := testArticle()
	// ON CONFLICT DO NOTHING yields zero rows from RETURNING.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO articles")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := pg.NewArticleRepo(db)
	inserted, err := repo.InsertIfNew(context.Background(), a)
	if err != nil {
		t.Fatalf("InsertIfNew err=%v", err)
	}
	if inserted {
		t.Fatal("conflict must report inserted=false")
	}
}

func TestArticleRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := testArticle()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
		WithArgs(int64(1)).
		WillReturnRows(artRow(want))

	repo := pg.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestArticleRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := pg.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), 99)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestArticleRepo_List_WithFilters(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	a := testArticle()
	competitor := "Acme"
	window := entity.Window{
		From: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM articles").
		WithArgs(competitor, window.From, window.To).
		WillReturnRows(artRow(a))

	repo := pg.NewArticleRepo(db)
	got, err := repo.List(context.Background(), repository.ArticleFilters{
		Competitor: &competitor,
		Window:     &window,
	})
	if err != nil || len(got) != 1 {
		t.Fatalf("List err=%v len=%d", err, len(got))
	}
}

func TestArticleRepo_ExistsByFingerprint(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fp").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := pg.NewArticleRepo(db)
	exists, err := repo.ExistsByFingerprint(context.Background(), "fp")
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
}

func TestArticleRepo_ExistsByFingerprintBatch(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT fingerprint FROM articles").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint"}).AddRow("aa"))

	repo := pg.NewArticleRepo(db)
	got, err := repo.ExistsByFingerprintBatch(context.Background(), []string{"aa", "bb"})
	if err != nil {
		t.Fatalf("ExistsByFingerprintBatch err=%v", err)
	}
	want := map[string]bool{"aa": true, "bb": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestArticleRepo_ExistsByFingerprintBatch_Empty(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	repo := pg.NewArticleRepo(db)
	got, err := repo.ExistsByFingerprintBatch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty map without query, got %v err=%v", got, err)
	}
}
