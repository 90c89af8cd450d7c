package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/driftwatch/driftwatch/internal/identity"
)

// HistoryHandler exposes per-user identity records and their histories.
type HistoryHandler struct {
	store  *identity.Store
	logger *slog.Logger
}

func NewHistoryHandler(log *slog.Logger, store *identity.Store) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: log.With(slog.String("handler", "history")),
	}
}

func (h *HistoryHandler) Register(e *echo.Echo) {
	e.GET("/groups/:group_id/users/:user_id", h.Get)
}

// Get returns the identity record for (group, user), including the observed
// name, handle, and photo fingerprint histories.
func (h *HistoryHandler) Get(c echo.Context) error {
	groupID, err := groupIDParam(c)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user id must be an integer")
	}
	rec, err := h.store.Get(c.Request().Context(), groupID, userID)
	if errors.Is(err, identity.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no record for this user")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
