package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &Store{DB: db}, mock, func() { db.Close() }
}

func TestCreateComment(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`
WITH ins AS (
  INSERT INTO comments (review_id, user_id, text) VALUES ($1,$2,$3)
  RETURNING id, review_id, user_id, text, created_at
)
SELECT ins.id, ins.review_id, ins.text, ins.created_at, u.id, u.username, u.avatar
FROM ins JOIN users u ON u.id = ins.user_id`)
	mock.ExpectQuery(query).
		WithArgs(int64(7), int64(3), "nice one").
		WillReturnRows(sqlmock.NewRows([]string{"id", "review_id", "text", "created_at", "id", "username", "avatar"}).
			AddRow(int64(42), int64(7), "nice one", created, int64(3), "sam", "http://img/3.png"))

	c, err := st.CreateComment(context.Background(), 7, 3, "nice one")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if c.ID != 42 || c.ReviewID != 7 || c.Text != "nice one" {
		t.Fatalf("unexpected comment: %+v", c)
	}
	if c.Author.ID != 3 || c.Author.Username != "sam" || c.Author.Avatar != "http://img/3.png" {
		t.Fatalf("unexpected author: %+v", c.Author)
	}
	if !c.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created_at: %v", c.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestToggleLikeInsertsThenDeletes(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	insert := regexp.QuoteMeta(`INSERT INTO likes (review_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`)

	mock.ExpectExec(insert).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	liked, err := st.ToggleLike(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if !liked {
		t.Fatalf("first toggle should like the review")
	}

	mock.ExpectExec(insert).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM likes WHERE review_id = $1 AND user_id = $2`)).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	liked, err = st.ToggleLike(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if liked {
		t.Fatalf("second toggle should remove the like")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListReviewsTopByCategory(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "title", "text", "rating", "user_id", "created_at", "id", "name", "category", "likes_count"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.category = $1")).
		WithArgs("kitchen", 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), "Great toaster", "toasts evenly", 5, int64(1), created, int64(9), "Toaster X", "kitchen", 12).
			AddRow(int64(1), "Decent kettle", "slow", 3, int64(1), created, int64(8), "Kettle Y", "kitchen", 4))

	out, err := st.ListReviews(context.Background(), ListReviewsOptions{Limit: 5, Top: true, Category: "kitchen"})
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0].ID != 2 || out[0].LikesCount != 12 || out[0].Product.Name != "Toaster X" {
		t.Fatalf("unexpected first row: %+v", out[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateReviewMissingRow(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reviews SET title = $2, text = $3, rating = $4, updated_at = NOW() WHERE id = $1`)).
		WithArgs(int64(99), "t", "x", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateReview(context.Background(), 99, "t", "x", 4)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateUserPartialFields(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET username = $2 WHERE id = $1`)).
		WithArgs(int64(5), "newname").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET avatar = NULLIF($2,'') WHERE id = $1`)).
		WithArgs(int64(5), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	username := "newname"
	avatar := ""
	if err := st.UpdateUser(context.Background(), 5, &username, nil, &avatar); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCredentials(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, status FROM users WHERE email = $1`)).
		WithArgs("sam@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "status"}).
			AddRow(int64(3), "$2a$10$hash", UserStatusActive))

	id, hash, status, err := st.GetCredentials(context.Background(), "sam@example.com")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if id != 3 || hash != "$2a$10$hash" || status != UserStatusActive {
		t.Fatalf("unexpected credentials: %d %q %q", id, hash, status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListCommentDocs(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, review_id, text FROM comments`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "review_id", "text"}).
			AddRow(int64(10), int64(2), "great once descaled").
			AddRow(int64(11), int64(2), "agreed"))

	docs, err := st.ListCommentDocs(context.Background())
	if err != nil {
		t.Fatalf("ListCommentDocs: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != 10 || docs[0].ReviewID != 2 {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
