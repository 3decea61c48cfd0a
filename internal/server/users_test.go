package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestUpdateUserRejectsEmptyUsername(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/api/users/5", strings.NewReader(`{"username":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("5")
	c.Set("user_id", int64(5))

	h := &UsersHandler{}
	err := h.update(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty username, got %v", err)
	}
}
