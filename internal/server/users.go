package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reviewly/reviewly/internal/auth"
	"github.com/reviewly/reviewly/internal/store"
)

type UsersHandler struct {
	Store  *store.Store
	Secret []byte
}

func (h *UsersHandler) Register(g *echo.Group) {
	authed := auth.Middleware(h.Secret)
	g.GET("/me", h.me, authed)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update, authed)
}

func (h *UsersHandler) me(c echo.Context) error {
	userID, _ := auth.UserID(c)
	profile, err := h.Store.GetUserProfile(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	if profile.Status == store.UserStatusBanned {
		cookie := new(http.Cookie)
		cookie.Name = auth.CookieName
		cookie.Value = ""
		cookie.Path = "/"
		cookie.MaxAge = -1
		c.SetCookie(cookie)
		return c.JSON(http.StatusOK, map[string]interface{}{"authenticated": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          profile,
	})
}

func (h *UsersHandler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	profile, err := h.Store.GetUserProfile(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// public view never includes the email
	profile.Email = ""
	return c.JSON(http.StatusOK, profile)
}

func (h *UsersHandler) update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	userID, _ := auth.UserID(c)
	if userID != id {
		u, err := h.Store.GetUser(c.Request().Context(), userID)
		if err != nil || u.Role != store.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "not your profile")
		}
	}
	var req UserUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Username != nil && *req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username cannot be empty")
	}
	if err := h.Store.UpdateUser(c.Request().Context(), id, req.Username, req.Email, req.Avatar); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.String(http.StatusOK, "OK")
}
