package network

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/insight"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/pkg/response"
)

// InsightSource produces operator summaries.
type InsightSource interface {
	Narrate(ctx context.Context) insight.Insight
}

// LotReader reads the mirrored lot snapshot.
type LotReader interface {
	GetLot(ctx context.Context, lotID string) (*engine.LotSnapshot, error)
}

// API serves the driver and operator REST endpoints.
type API struct {
	engine        *engine.Engine
	insight       InsightSource
	cache         LotReader
	classifySlots *semaphore.Weighted
	maxUpload     int64
	logger        *logger.Logger
}

// NewAPI creates the REST handlers. insights and cache may be nil.
func NewAPI(eng *engine.Engine, insights InsightSource, cache LotReader, classifyQueue int, maxUpload int64, log *logger.Logger) *API {
	if classifyQueue <= 0 {
		classifyQueue = 1
	}
	return &API{
		engine:        eng,
		insight:       insights,
		cache:         cache,
		classifySlots: semaphore.NewWeighted(int64(classifyQueue)),
		maxUpload:     maxUpload,
		logger:        log.With("component", "api"),
	}
}

// TargetRequest selects a spot by ID.
type TargetRequest struct {
	SpotID string `json:"spot_id" binding:"required"`
}

// NearestRequest asks for the closest free spot, optionally of one category.
type NearestRequest struct {
	Category string `json:"category"`
}

// NearestResponse reports a nearest spot search. Found is false when nothing
// matched, which is an outcome and not an error.
type NearestResponse struct {
	Found bool          `json:"found"`
	Spot  *parking.Spot `json:"spot,omitempty"`
}

// IntentRequest presses or releases one direction.
type IntentRequest struct {
	Key     string `json:"key" binding:"required"`
	Pressed bool   `json:"pressed"`
}

// ReserveRequest holds a spot for a number of hours.
type ReserveRequest struct {
	Hours float64 `json:"hours"`
}

// ReserveResponse reports a reservation and its charge.
type ReserveResponse struct {
	Spot   parking.Spot `json:"spot"`
	Hours  float64      `json:"hours"`
	Charge float64      `json:"charge"`
}

// spotErrorStatus maps lot sentinel errors to HTTP status codes.
func spotErrorStatus(err error) int {
	switch {
	case errors.Is(err, lot.ErrSpotNotFound):
		return http.StatusNotFound
	case errors.Is(err, lot.ErrSpotUnavailable):
		return http.StatusConflict
	case errors.Is(err, lot.ErrInvalidCategory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetLot returns the lot snapshot.
// GET /api/v1/lot
func (a *API) GetLot(c *gin.Context) {
	response.Success(c, a.engine.Snapshot())
}

// GetSpot returns one spot.
// GET /api/v1/lot/spots/:id
func (a *API) GetSpot(c *gin.Context) {
	spot, ok := a.engine.Spot(c.Param("id"))
	if !ok {
		response.NotFound(c, "spot not found")
		return
	}
	response.Success(c, spot)
}

// GetVehicle returns the vehicle and its guidance state.
// GET /api/v1/vehicle
func (a *API) GetVehicle(c *gin.Context) {
	response.Success(c, a.engine.Vehicle())
}

// SetTarget starts guidance to a chosen spot.
// POST /api/v1/vehicle/target
func (a *API) SetTarget(c *gin.Context) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "spot_id is required")
		return
	}
	spot, err := a.engine.AssignTarget(req.SpotID)
	if err != nil {
		response.Error(c, spotErrorStatus(err), err.Error())
		return
	}
	response.Success(c, spot)
}

// ClearTarget stops guidance.
// DELETE /api/v1/vehicle/target
func (a *API) ClearTarget(c *gin.Context) {
	a.engine.ClearTarget()
	response.Success(c, a.engine.Vehicle())
}

// FindNearest targets the closest free spot.
// POST /api/v1/vehicle/nearest
func (a *API) FindNearest(c *gin.Context) {
	var req NearestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	spot, err := a.engine.AssignNearest(parking.Category(req.Category))
	switch {
	case errors.Is(err, lot.ErrNoSpotAvailable):
		response.SuccessWithMessage(c, "no spot available", NearestResponse{Found: false})
	case err != nil:
		response.Error(c, spotErrorStatus(err), err.Error())
	default:
		response.Success(c, NearestResponse{Found: true, Spot: &spot})
	}
}

// SetIntent presses or releases a driving direction.
// POST /api/v1/vehicle/intent
func (a *API) SetIntent(c *gin.Context) {
	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "key is required")
		return
	}
	d, err := engine.ParseDirection(req.Key)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := a.engine.SetIntent(d, req.Pressed); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, a.engine.Intents())
}

// Depart leaves the spot the vehicle is parked in.
// POST /api/v1/vehicle/depart
func (a *API) Depart(c *gin.Context) {
	a.engine.Depart()
	response.Success(c, a.engine.Vehicle())
}

// UploadOccupancy classifies an uploaded lot image.
// POST /api/v1/admin/occupancy (multipart field "image")
func (a *API) UploadOccupancy(c *gin.Context) {
	if a.maxUpload > 0 {
		if c.Request.ContentLength > a.maxUpload {
			response.Error(c, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUpload)
	}

	if !a.classifySlots.TryAcquire(1) {
		response.Error(c, http.StatusServiceUnavailable, "classification queue full")
		return
	}
	defer a.classifySlots.Release(1)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		response.BadRequest(c, "multipart field \"image\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.InternalError(c, "could not read upload")
		return
	}
	defer f.Close()

	report, err := a.engine.ClassifyUpload(c.Request.Context(), f)
	switch {
	case errors.Is(err, engine.ErrImageDecode):
		response.Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrSuperseded):
		c.JSON(http.StatusConflict, response.Response{
			Code:    http.StatusConflict,
			Message: err.Error(),
			Data:    report,
		})
	case err != nil:
		a.logger.Error("classification failed", "image_id", report.ImageID, "error", err)
		response.InternalError(c, "classification failed")
	default:
		response.Success(c, report)
	}
}

// ReserveSpot holds a spot.
// POST /api/v1/admin/spots/:id/reserve
func (a *API) ReserveSpot(c *gin.Context) {
	req := ReserveRequest{Hours: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	if req.Hours <= 0 {
		response.BadRequest(c, "hours must be positive")
		return
	}
	d := time.Duration(req.Hours * float64(time.Hour))
	spot, charge, err := a.engine.Reserve(c.Param("id"), d)
	if err != nil {
		response.Error(c, spotErrorStatus(err), err.Error())
		return
	}
	response.Success(c, ReserveResponse{Spot: spot, Hours: req.Hours, Charge: charge})
}

// ReleaseSpot frees a reserved spot.
// DELETE /api/v1/admin/spots/:id/reserve
func (a *API) ReleaseSpot(c *gin.Context) {
	spot, err := a.engine.Release(c.Param("id"))
	if err != nil {
		response.Error(c, spotErrorStatus(err), err.Error())
		return
	}
	response.Success(c, spot)
}

// GetInsight returns the operator summary.
// GET /api/v1/admin/insight
func (a *API) GetInsight(c *gin.Context) {
	if a.insight == nil {
		response.Error(c, http.StatusServiceUnavailable, "insight not configured")
		return
	}
	response.Success(c, a.insight.Narrate(c.Request.Context()))
}

// GetStats returns the aggregate lot figures.
// GET /api/v1/admin/stats
func (a *API) GetStats(c *gin.Context) {
	response.Success(c, a.engine.Stats())
}

// GetCachedLot returns the lot snapshot mirrored in Redis.
// GET /api/v1/admin/lot/cached
func (a *API) GetCachedLot(c *gin.Context) {
	if a.cache == nil {
		response.Error(c, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	snap, err := a.cache.GetLot(c.Request.Context(), a.engine.LotID())
	if err != nil {
		response.NotFound(c, "no cached snapshot")
		return
	}
	response.Success(c, snap)
}

// RegisterRoutes sets up the driver routes.
func (a *API) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/lot", a.GetLot)
	rg.GET("/lot/spots/:id", a.GetSpot)
	rg.GET("/vehicle", a.GetVehicle)
	rg.POST("/vehicle/target", a.SetTarget)
	rg.DELETE("/vehicle/target", a.ClearTarget)
	rg.POST("/vehicle/nearest", a.FindNearest)
	rg.POST("/vehicle/intent", a.SetIntent)
	rg.POST("/vehicle/depart", a.Depart)
}

// RegisterAdminRoutes sets up the operator routes. The caller applies auth.
func (a *API) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/occupancy", a.UploadOccupancy)
	rg.POST("/spots/:id/reserve", a.ReserveSpot)
	rg.DELETE("/spots/:id/reserve", a.ReleaseSpot)
	rg.GET("/insight", a.GetInsight)
	rg.GET("/stats", a.GetStats)
	rg.GET("/lot/cached", a.GetCachedLot)
}
