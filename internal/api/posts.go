package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/tanq16/yandl/internal/store"
)

const maxPageSize = 500

type PostController struct {
	Store PostStore
}

type listResponse struct {
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Records []*store.Record `json:"records"`
}

func (ctrl *PostController) List(c *echo.Context) error {
	limit, err := intParam(c.QueryParam("limit"), 50)
	if err != nil || limit <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
	}
	offset, err := intParam(c.QueryParam("offset"), 0)
	if err != nil || offset < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid offset"})
	}
	limit = min(limit, maxPageSize)

	ctx := c.Request().Context()
	records, err := ctrl.Store.List(ctx, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list posts")
	}
	total, err := ctrl.Store.Count(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count posts")
	}
	if records == nil {
		records = []*store.Record{}
	}
	return c.JSON(http.StatusOK, listResponse{Total: total, Limit: limit, Offset: offset, Records: records})
}

func (ctrl *PostController) Get(c *echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	rec, err := ctrl.Store.Get(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "post not found"})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load post")
	}
	return c.JSON(http.StatusOK, rec)
}

func intParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}
