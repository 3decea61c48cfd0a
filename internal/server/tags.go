package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reviewly/reviewly/internal/store"
)

type TagsHandler struct {
	Store *store.Store
}

func (h *TagsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
}

func (h *TagsHandler) list(c echo.Context) error {
	tags, err := h.Store.ListTags(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tags)
}
