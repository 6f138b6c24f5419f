package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/smskit/sim-gateway/internal/service/dispatch"
)

type dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

type sendReq struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	SimCardID string `json:"sim_card_id"`
}

func sendSMSHandler(svc dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		res, err := svc.Dispatch(c.Request().Context(), dispatch.Request{
			Recipient: req.Recipient,
			Body:      req.Message,
			SimID:     req.SimCardID,
		})
		if err != nil {
			var verr *dispatch.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
			case errors.Is(err, dispatch.ErrInvalidSim):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid sim card id"})
			case errors.Is(err, dispatch.ErrSimInactive):
				return c.JSON(http.StatusConflict, map[string]string{"error": "sim card is inactive"})
			case errors.Is(err, dispatch.ErrNoSimAvailable):
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no available sim cards"})
			case errors.Is(err, dispatch.ErrDispatchFailed):
				return c.JSON(http.StatusBadGateway, map[string]string{"error": "dispatch failed"})
			}

			log.Errorf("dispatch failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"message_id": res.Message.ID,
			"status":     res.Message.Status.String(),
			"sender_sim": res.Sim.Number,
		})
	}
}
