package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/service/registry"
)

type simRegistry interface {
	Register(ctx context.Context, number string, status model.SimStatus) (*model.SimCard, error)
	Update(ctx context.Context, id string, number *string, status *model.SimStatus) (*model.SimCard, error)
	Deregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.SimCard, error)
}

type simReq struct {
	Number string `json:"number"`
	Status string `json:"status"`
}

func listSimsHandler(reg simRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		sims, err := reg.List(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("list sims failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":     len(sims),
			"sim_cards": sims,
		})
	}
}

func addSimHandler(reg simRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req simReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		sim, err := reg.Register(c.Request().Context(), req.Number, model.SimStatus(req.Status))
		if err != nil {
			if errors.Is(err, registry.ErrInvalidNumber) || errors.Is(err, registry.ErrInvalidStatus) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			log.Errorf("register sim failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, sim)
	}
}

func updateSimHandler(reg simRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		var raw map[string]string
		if err := c.Bind(&raw); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		var number *string
		var status *model.SimStatus
		if v, ok := raw["number"]; ok {
			number = &v
		}
		if v, ok := raw["status"]; ok {
			st := model.SimStatus(v)
			status = &st
		}

		sim, err := reg.Update(c.Request().Context(), c.Param("id"), number, status)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrNotFound):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "sim card not found"})
			case errors.Is(err, registry.ErrInvalidNumber), errors.Is(err, registry.ErrInvalidStatus):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			log.Errorf("update sim failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, sim)
	}
}

func removeSimHandler(reg simRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := reg.Deregister(c.Request().Context(), c.Param("id")); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "sim card not found"})
			}

			log.Errorf("deregister sim failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]string{"message": "sim card deactivated"})
	}
}
