package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// User statuses.
const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the sanitized user row: credential columns never leave this package.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// UserProfile is a user plus the review/like references the UI renders.
type UserProfile struct {
	User
	ReviewIDs      []int64 `json:"reviews"`
	LikedReviewIDs []int64 `json:"likes"`
}

// ReviewSummary is the list-view projection of a review.
type ReviewSummary struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	UserID     int64     `json:"userId"`
	LikesCount int       `json:"likesCount"`
	Product    Product   `json:"product"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Review is the detail view; optional expansions are nil unless requested.
type Review struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Rating    int       `json:"rating"`
	UserID    int64     `json:"userId"`
	ProductID int64     `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
	Tags      []string  `json:"tags"`
	Likes     []int64   `json:"likes"`

	Author   *CommentAuthor `json:"user,omitempty"`
	Comments []Comment      `json:"comments,omitempty"`
	Gallery  []ReviewImage  `json:"gallery,omitempty"`
}

type ReviewImage struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

type Comment struct {
	ID        int64         `json:"id"`
	ReviewID  int64         `json:"reviewId"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"createdAt"`
	Author    CommentAuthor `json:"user"`
}

type CommentAuthor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ReviewDoc and CommentDoc feed the relevance indexes.
type ReviewDoc struct {
	ID    int64
	Title string
	Text  string
}

type CommentDoc struct {
	ID       int64
	ReviewID int64
	Text     string
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, username, email, hash string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, NULLIF($2,''), $3) RETURNING id`,
		username, email, hash).Scan(&id)
	return id, err
}

// GetCredentials looks a user up by email for login.
func (s *Store) GetCredentials(ctx context.Context, email string) (id int64, hash string, status string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash, status FROM users WHERE email = $1`, email).
		Scan(&id, &hash, &status)
	return
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	var email, avatar sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, username, email, avatar, role, status FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &email, &avatar, &u.Role, &u.Status)
	u.Email = email.String
	u.Avatar = avatar.String
	return u, err
}

func (s *Store) GetUserProfile(ctx context.Context, id int64) (UserProfile, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return UserProfile{}, err
	}
	p := UserProfile{User: u, ReviewIDs: []int64{}, LikedReviewIDs: []int64{}}

	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM reviews WHERE user_id = $1 ORDER BY id`, id)
	if err != nil {
		return UserProfile{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			return UserProfile{}, err
		}
		p.ReviewIDs = append(p.ReviewIDs, rid)
	}
	if err := rows.Err(); err != nil {
		return UserProfile{}, err
	}

	likeRows, err := s.DB.QueryContext(ctx, `SELECT review_id FROM likes WHERE user_id = $1 ORDER BY review_id`, id)
	if err != nil {
		return UserProfile{}, err
	}
	defer likeRows.Close()
	for likeRows.Next() {
		var rid int64
		if err := likeRows.Scan(&rid); err != nil {
			return UserProfile{}, err
		}
		p.LikedReviewIDs = append(p.LikedReviewIDs, rid)
	}
	return p, likeRows.Err()
}

// UpdateUser applies partial updates; nil fields are left untouched, empty
// strings clear the nullable columns (mirrors the PUT semantics of the
// profile form). username is NOT NULL, so callers must not pass it empty.
func (s *Store) UpdateUser(ctx context.Context, id int64, username, email, avatar *string) error {
	if username != nil {
		if _, err := s.DB.ExecContext(ctx, `UPDATE users SET username = $2 WHERE id = $1`, id, *username); err != nil {
			return err
		}
	}
	if email != nil {
		if _, err := s.DB.ExecContext(ctx, `UPDATE users SET email = NULLIF($2,'') WHERE id = $1`, id, *email); err != nil {
			return err
		}
	}
	if avatar != nil {
		if _, err := s.DB.ExecContext(ctx, `UPDATE users SET avatar = NULLIF($2,'') WHERE id = $1`, id, *avatar); err != nil {
			return err
		}
	}
	return nil
}

// ---- reviews ----

// ListReviewsOptions mirrors the list query params: ?limit=, ?top, ?cat=.
type ListReviewsOptions struct {
	Limit    int
	Top      bool
	Category string
}

func (s *Store) ListReviews(ctx context.Context, opts ListReviewsOptions) ([]ReviewSummary, error) {
	q := `
SELECT r.id, r.title, r.text, r.rating, r.user_id, r.created_at,
       p.id, p.name, p.category,
       COUNT(l.user_id)::int AS likes_count
FROM reviews r
JOIN products p ON p.id = r.product_id
LEFT JOIN likes l ON l.review_id = r.id`
	args := []interface{}{}
	if opts.Category != "" {
		args = append(args, opts.Category)
		q += fmt.Sprintf("\nWHERE p.category = $%d", len(args))
	}
	q += "\nGROUP BY r.id, p.id"
	if opts.Top {
		q += "\nORDER BY likes_count DESC"
	} else {
		q += "\nORDER BY r.created_at DESC"
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ReviewSummary{}
	for rows.Next() {
		var r ReviewSummary
		if err := rows.Scan(&r.ID, &r.Title, &r.Text, &r.Rating, &r.UserID, &r.CreatedAt,
			&r.Product.ID, &r.Product.Name, &r.Product.Category, &r.LikesCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type NewReview struct {
	Title     string
	Text      string
	Rating    int
	ProductID int64
	UserID    int64
}

func (s *Store) CreateReview(ctx context.Context, r NewReview) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO reviews (title, text, rating, product_id, user_id) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		r.Title, r.Text, r.Rating, r.ProductID, r.UserID).Scan(&id)
	return id, err
}

// GetReviewOptions selects the optional expansions of the detail view.
type GetReviewOptions struct {
	WithComments bool
	WithUser     bool
	WithGallery  bool
}

func (s *Store) GetReview(ctx context.Context, id int64, opts GetReviewOptions) (*Review, error) {
	var r Review
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, title, text, rating, user_id, product_id, created_at FROM reviews WHERE id = $1`, id).
		Scan(&r.ID, &r.Title, &r.Text, &r.Rating, &r.UserID, &r.ProductID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Tags = []string{}
	tagRows, err := s.DB.QueryContext(ctx,
		`SELECT t.name FROM tags t JOIN review_tags rt ON rt.tag_id = t.id WHERE rt.review_id = $1 ORDER BY t.name`, id)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var name string
		if err := tagRows.Scan(&name); err != nil {
			return nil, err
		}
		r.Tags = append(r.Tags, name)
	}
	if err := tagRows.Err(); err != nil {
		return nil, err
	}

	r.Likes = []int64{}
	likeRows, err := s.DB.QueryContext(ctx, `SELECT user_id FROM likes WHERE review_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer likeRows.Close()
	for likeRows.Next() {
		var uid int64
		if err := likeRows.Scan(&uid); err != nil {
			return nil, err
		}
		r.Likes = append(r.Likes, uid)
	}
	if err := likeRows.Err(); err != nil {
		return nil, err
	}

	if opts.WithUser {
		var a CommentAuthor
		var avatar sql.NullString
		err := s.DB.QueryRowContext(ctx,
			`SELECT id, username, avatar FROM users WHERE id = $1`, r.UserID).
			Scan(&a.ID, &a.Username, &avatar)
		if err != nil {
			return nil, err
		}
		a.Avatar = avatar.String
		r.Author = &a
	}
	if opts.WithComments {
		comments, err := s.ListComments(ctx, id)
		if err != nil {
			return nil, err
		}
		r.Comments = comments
	}
	if opts.WithGallery {
		r.Gallery = []ReviewImage{}
		imgRows, err := s.DB.QueryContext(ctx,
			`SELECT id, src FROM review_images WHERE review_id = $1 ORDER BY id`, id)
		if err != nil {
			return nil, err
		}
		defer imgRows.Close()
		for imgRows.Next() {
			var img ReviewImage
			if err := imgRows.Scan(&img.ID, &img.Src); err != nil {
				return nil, err
			}
			r.Gallery = append(r.Gallery, img)
		}
		if err := imgRows.Err(); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// ReviewAuthor returns the owning user id, for author/admin checks.
func (s *Store) ReviewAuthor(ctx context.Context, id int64) (int64, error) {
	var uid int64
	err := s.DB.QueryRowContext(ctx, `SELECT user_id FROM reviews WHERE id = $1`, id).Scan(&uid)
	return uid, err
}

func (s *Store) UpdateReview(ctx context.Context, id int64, title, text string, rating int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE reviews SET title = $2, text = $3, rating = $4, updated_at = NOW() WHERE id = $1`,
		id, title, text, rating)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	return err
}

// SetReviewTags find-or-creates each tag by name and replaces the review's tag set.
func (s *Store) SetReviewTags(ctx context.Context, reviewID int64, names []string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_tags WHERE review_id = $1`, reviewID); err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		var tagID int64
		err := tx.QueryRowContext(ctx, `
INSERT INTO tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, name).Scan(&tagID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO review_tags (review_id, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			reviewID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AddReviewImages(ctx context.Context, reviewID int64, srcs []string) error {
	if len(srcs) == 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO review_images (review_id, src)
SELECT $1, unnest($2::text[])
ON CONFLICT (review_id, src) DO NOTHING`, reviewID, pq.Array(srcs))
	return err
}

// ToggleLike flips the like and reports whether the review is now liked.
func (s *Store) ToggleLike(ctx context.Context, reviewID, userID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO likes (review_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		reviewID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	_, err = s.DB.ExecContext(ctx, `DELETE FROM likes WHERE review_id = $1 AND user_id = $2`, reviewID, userID)
	return false, err
}

func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- comments ----

// CreateComment persists the comment and returns it hydrated with the author
// summary, ready to broadcast.
func (s *Store) CreateComment(ctx context.Context, reviewID, userID int64, text string) (Comment, error) {
	var c Comment
	var avatar sql.NullString
	err := s.DB.QueryRowContext(ctx, `
WITH ins AS (
  INSERT INTO comments (review_id, user_id, text) VALUES ($1,$2,$3)
  RETURNING id, review_id, user_id, text, created_at
)
SELECT ins.id, ins.review_id, ins.text, ins.created_at, u.id, u.username, u.avatar
FROM ins JOIN users u ON u.id = ins.user_id`,
		reviewID, userID, text).
		Scan(&c.ID, &c.ReviewID, &c.Text, &c.CreatedAt, &c.Author.ID, &c.Author.Username, &avatar)
	c.Author.Avatar = avatar.String
	return c, err
}

func (s *Store) ListComments(ctx context.Context, reviewID int64) ([]Comment, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.review_id, c.text, c.created_at, u.id, u.username, u.avatar
FROM comments c JOIN users u ON u.id = c.user_id
WHERE c.review_id = $1
ORDER BY c.created_at`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		var c Comment
		var avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.Text, &c.CreatedAt, &c.Author.ID, &c.Author.Username, &avatar); err != nil {
			return nil, err
		}
		c.Author.Avatar = avatar.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- search corpus feeds ----

func (s *Store) ListReviewDocs(ctx context.Context) ([]ReviewDoc, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, title, text FROM reviews`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReviewDoc{}
	for rows.Next() {
		var d ReviewDoc
		if err := rows.Scan(&d.ID, &d.Title, &d.Text); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListCommentDocs(ctx context.Context) ([]CommentDoc, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, review_id, text FROM comments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CommentDoc{}
	for rows.Next() {
		var d CommentDoc
		if err := rows.Scan(&d.ID, &d.ReviewID, &d.Text); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
