package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/reviewly/reviewly/internal/auth"
	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/store"
	"github.com/reviewly/reviewly/internal/stream"
)

type ReviewsHandler struct {
	Store      *store.Store
	Indexer    *search.Indexer
	Registry   *stream.Registry
	Dispatcher *stream.Dispatcher
	// Buffer sizes each stream subscriber's frame channel
	Buffer int
	Secret []byte
}

func (h *ReviewsHandler) Register(g *echo.Group) {
	authed := auth.Middleware(h.Secret)
	g.GET("", h.list)
	g.POST("", h.create, authed)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update, authed)
	g.DELETE("/:id", h.delete, authed)
	g.GET("/:id/like", h.like, authed)
	g.GET("/:id/comments", h.streamComments)
	g.POST("/:id/comments", h.createComment, authed)
}

func reviewIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid review id")
	}
	return id, nil
}

func (h *ReviewsHandler) list(c echo.Context) error {
	opts := store.ListReviewsOptions{Category: c.QueryParam("cat")}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	_, opts.Top = c.QueryParams()["top"]

	items, err := h.Store.ListReviews(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ReviewsHandler) create(c echo.Context) error {
	userID, _ := auth.UserID(c)
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" || req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and text required")
	}

	ctx := c.Request().Context()
	id, err := h.Store.CreateReview(ctx, store.NewReview{
		Title:     req.Title,
		Text:      req.Text,
		Rating:    req.Rating,
		ProductID: req.ProductID,
		UserID:    userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.SetReviewTags(ctx, id, req.Tags); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	srcs := make([]string, 0, len(req.Gallery))
	for _, img := range req.Gallery {
		srcs = append(srcs, img.Src)
	}
	if err := h.Store.AddReviewImages(ctx, id, srcs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Indexer.IndexReview(store.ReviewDoc{ID: id, Title: req.Title, Text: req.Text}); err != nil {
		log.Printf("index review %d: %v", id, err)
	}
	return c.String(http.StatusOK, strconv.FormatInt(id, 10))
}

func (h *ReviewsHandler) get(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}
	params := c.QueryParams()
	_, withComments := params["comments"]
	_, withUser := params["user"]
	_, withGallery := params["gallery"]

	review, err := h.Store.GetReview(c.Request().Context(), id, store.GetReviewOptions{
		WithComments: withComments,
		WithUser:     withUser,
		WithGallery:  withGallery,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, review)
}

// adminOrAuthor enforces the ownership rule for mutating a review.
func (h *ReviewsHandler) adminOrAuthor(c echo.Context, reviewID int64) error {
	userID, _ := auth.UserID(c)
	authorID, err := h.Store.ReviewAuthor(c.Request().Context(), reviewID)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if authorID == userID {
		return nil
	}
	u, err := h.Store.GetUser(c.Request().Context(), userID)
	if err != nil || u.Role != store.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "not the author")
	}
	return nil
}

func (h *ReviewsHandler) update(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}
	if err := h.adminOrAuthor(c, id); err != nil {
		return err
	}
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.Store.UpdateReview(ctx, id, req.Title, req.Text, req.Rating); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.SetReviewTags(ctx, id, req.Tags); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	srcs := make([]string, 0, len(req.Gallery))
	for _, img := range req.Gallery {
		srcs = append(srcs, img.Src)
	}
	if err := h.Store.AddReviewImages(ctx, id, srcs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Indexer.IndexReview(store.ReviewDoc{ID: id, Title: req.Title, Text: req.Text}); err != nil {
		log.Printf("reindex review %d: %v", id, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (h *ReviewsHandler) delete(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}
	if err := h.adminOrAuthor(c, id); err != nil {
		return err
	}
	if err := h.Store.DeleteReview(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Indexer.RemoveReview(id); err != nil {
		log.Printf("deindex review %d: %v", id, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (h *ReviewsHandler) like(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}
	userID, _ := auth.UserID(c)
	if _, err := h.Store.ToggleLike(c.Request().Context(), id, userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.String(http.StatusOK, "OK")
}

// streamComments holds the connection open and emits one SSE frame per new
// comment on the review. No backlog is replayed; subscribers only see
// comments posted while connected.
func (h *ReviewsHandler) streamComments(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := stream.NewSubscriber(h.Buffer)
	h.Registry.Subscribe(id, sub)
	defer h.Registry.Unsubscribe(id, sub)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-sub.Events():
			if !ok {
				// dispatcher dropped us (slow consumer)
				return nil
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// createComment persists the comment, then hands the hydrated event to the
// dispatcher. Delivery is fire-and-forget: the response does not depend on
// any subscriber outcome.
func (h *ReviewsHandler) createComment(c echo.Context) error {
	id, err := reviewIDParam(c)
	if err != nil {
		return err
	}
	userID, _ := auth.UserID(c)
	var req CommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Comment == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "comment required")
	}

	comment, err := h.Store.CreateComment(c.Request().Context(), id, userID, req.Comment)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23503" {
			return echo.NewHTTPError(http.StatusNotFound, "review not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Dispatcher.Publish(stream.CommentEvent{
		ID:        comment.ID,
		ReviewID:  comment.ReviewID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
		Author: stream.Author{
			ID:       comment.Author.ID,
			Username: comment.Author.Username,
			Avatar:   comment.Author.Avatar,
		},
	})
	if err := h.Indexer.IndexComment(store.CommentDoc{ID: comment.ID, ReviewID: comment.ReviewID, Text: comment.Text}); err != nil {
		log.Printf("index comment %d: %v", comment.ID, err)
	}
	return c.NoContent(http.StatusOK)
}
