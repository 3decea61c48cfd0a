package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reviewly/reviewly/internal/search"
)

type SearchHandler struct {
	Svc *search.Service
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.POST("", h.search)
}

// search always answers with a well-formed array: empty queries, limits <= 0
// and partial ranking failures all degrade to fewer (or zero) results, never
// an error status.
func (h *SearchHandler) search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.Svc.Search(req.Search, req.Limit))
}
