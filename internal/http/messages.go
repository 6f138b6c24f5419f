package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/repository"
)

func pagination(c echo.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func listMessagesHandler(msgs repository.MessagesRepository, direction model.Direction) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, offset := pagination(c)

		rows, err := msgs.ListByDirection(c.Request().Context(), direction, limit, offset)
		if err != nil {
			c.Logger().Errorf("list messages failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":    len(rows),
			"messages": rows,
		})
	}
}

func getMessageHandler(msgs repository.MessagesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := msgs.GetByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "message not found"})
			}
			c.Logger().Errorf("get message failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, m)
	}
}
