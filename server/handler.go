package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/manager"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

var errPositionForm = errors.New("exactly one of lat/lon or x/y must be given")

type handler struct {
	tracker  Tracker
	validate *validator.Validate
	logger   *zap.Logger
}

func (h *handler) healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *handler) tiles(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

func (h *handler) tilePayload(c *gin.Context) {
	i, err := strconv.ParseInt(c.Param("i"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "i should be integer"})
		return
	}
	j, err := strconv.ParseInt(c.Param("j"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "j should be integer"})
		return
	}

	t, ok := h.tracker.Tile(tile.Index{I: int32(i), J: int32(j)})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not loaded"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", t.Payload)
}

type positionRequest struct {
	Lat *float64 `json:"lat" validate:"required_with=Lon,omitempty,latitude"`
	Lon *float64 `json:"lon" validate:"required_with=Lat,omitempty,longitude"`
	X   *float64 `json:"x" validate:"required_with=Y"`
	Y   *float64 `json:"y" validate:"required_with=X"`
}

type positionResponse struct {
	Position    orb.Point       `json:"position"`
	GeoPosition *geo.Coordinate `json:"geo_position,omitempty"`
	Current     *tile.Index     `json:"current,omitempty"`
}

func (h *handler) position(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, status, err := h.apply(c.Request.Context(), req)
	if err != nil {
		if status == http.StatusInternalServerError {
			_ = c.Error(err)
			c.JSON(status, gin.H{"error": "failed to update position"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// apply validates req and feeds it to the tracker. The returned status is
// the HTTP status matching the outcome.
func (h *handler) apply(ctx context.Context, req positionRequest) (positionResponse, int, error) {
	if err := h.validate.Struct(req); err != nil {
		return positionResponse{}, http.StatusBadRequest, err
	}

	var err error
	switch geographic, planar := req.Lat != nil, req.X != nil; {
	case geographic && !planar:
		err = h.tracker.UpdateGeo(ctx, geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon})
	case planar && !geographic:
		err = h.tracker.UpdatePlanar(ctx, orb.Point{*req.X, *req.Y})
	default:
		return positionResponse{}, http.StatusBadRequest, errPositionForm
	}
	if errors.Is(err, manager.ErrInvalidPosition) {
		return positionResponse{}, http.StatusBadRequest, err
	}
	if err != nil {
		h.logger.Error("position update failed", zap.Error(err))
		return positionResponse{}, http.StatusInternalServerError, err
	}

	s := h.tracker.Snapshot()
	return positionResponse{
		Position:    s.Position,
		GeoPosition: s.GeoPosition,
		Current:     s.Current,
	}, http.StatusOK, nil
}
