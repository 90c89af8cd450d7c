package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/driftwatch/driftwatch/internal/groups"
)

// GroupsHandler exposes per-group detection configuration.
type GroupsHandler struct {
	service *groups.Service
	logger  *slog.Logger
}

func NewGroupsHandler(log *slog.Logger, service *groups.Service) *GroupsHandler {
	return &GroupsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "groups")),
	}
}

func (h *GroupsHandler) Register(e *echo.Echo) {
	group := e.Group("/groups/:group_id")
	group.GET("/config", h.Get)
	group.PATCH("/config", h.Patch)
}

// PatchConfigRequest carries the fields to change; omitted fields are left
// untouched.
type PatchConfigRequest struct {
	Enabled       *bool    `json:"enabled,omitempty"`
	NameThreshold *float64 `json:"name_threshold,omitempty"`
	CheckPhoto    *bool    `json:"check_photo,omitempty"`
	Cooldown      *int     `json:"cooldown_seconds,omitempty"`
	PhotoDistance *int     `json:"photo_distance,omitempty"`
}

// Get returns the group's detection configuration.
func (h *GroupsHandler) Get(c echo.Context) error {
	groupID, err := groupIDParam(c)
	if err != nil {
		return err
	}
	cfg, err := h.service.Get(c.Request().Context(), groupID)
	if errors.Is(err, groups.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "group not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

// Patch applies the provided configuration fields and returns the updated
// configuration. Validation failures map to 422.
func (h *GroupsHandler) Patch(c echo.Context) error {
	groupID, err := groupIDParam(c)
	if err != nil {
		return err
	}
	var req PatchConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	ctx := c.Request().Context()

	cfg, err := h.service.Ensure(ctx, groupID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.Enabled != nil {
		cfg, err = h.service.SetEnabled(ctx, groupID, *req.Enabled)
	}
	if err == nil && req.NameThreshold != nil {
		cfg, err = h.service.SetNameThreshold(ctx, groupID, *req.NameThreshold)
	}
	if err == nil && req.CheckPhoto != nil {
		cfg, err = h.service.SetCheckPhoto(ctx, groupID, *req.CheckPhoto)
	}
	if err == nil && req.Cooldown != nil {
		cfg, err = h.service.SetCooldown(ctx, groupID, *req.Cooldown)
	}
	if err == nil && req.PhotoDistance != nil {
		cfg, err = h.service.SetPhotoDistance(ctx, groupID, *req.PhotoDistance)
	}
	if err != nil {
		if errors.Is(err, groups.ErrThresholdRange) || errors.Is(err, groups.ErrCooldownRange) || errors.Is(err, groups.ErrDistanceRange) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("config updated", slog.Int64("group_id", groupID))
	return c.JSON(http.StatusOK, cfg)
}

func groupIDParam(c echo.Context) (int64, error) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "group id must be an integer")
	}
	return groupID, nil
}
