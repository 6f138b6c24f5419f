package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smskit/sim-gateway/internal/repository"
)

func listLogsHandler(logs repository.LogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := pagination(c)

		rows, err := logs.List(c.Request().Context(), limit, offset)
		if err != nil {
			c.Logger().Errorf("list logs failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count": len(rows),
			"logs":  rows,
		})
	}
}
