package scheduling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/service/scheduling"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/validator"
)

type Handler struct {
	service *scheduling.Service
}

func NewHandler(service *scheduling.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	s := r.Group("/scheduling")
	{
		s.POST("", h.ScheduleContent)
		s.GET("", h.ListScheduledContent)
		s.GET("/upcoming", h.GetUpcoming)
		s.GET("/calendar", h.GetCalendar)
		s.GET("/failed", h.GetFailed)
		s.POST("/bulk", h.BulkSchedule)
		s.GET("/:id", h.GetScheduledContent)
		s.PUT("/:id", h.UpdateScheduledContent)
		s.DELETE("/:id", h.CancelScheduledContent)
		s.PATCH("/:id/reschedule", h.RescheduleContent)
	}
}

func (h *Handler) ScheduleContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	var req model.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(validator.Describe(err)))
		return
	}

	booking, err := h.service.ScheduleContent(c.Request.Context(), ownerID, req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(booking))
}

func (h *Handler) GetScheduledContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.service.GetScheduledContent(c.Request.Context(), ownerID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(booking))
}

func (h *Handler) ListScheduledContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	filters := model.ScheduleFilters{
		Status:   model.BookingStatus(c.Query("status")),
		Platform: model.Platform(c.Query("platform")),
	}

	if v := c.Query("campaign_id"); v != "" {
		campaignID, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid campaign ID"))
			return
		}
		filters.CampaignID = &campaignID
	}

	var err error
	if filters.StartDate, err = queryTime(c, "start_date", scheduling.ParseRangeStart); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid start_date"))
		return
	}
	if filters.EndDate, err = queryTime(c, "end_date", scheduling.ParseRangeEnd); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid end_date"))
		return
	}
	if filters.Limit, ok = queryLimit(c); !ok {
		return
	}

	bookings, err := h.service.ListScheduledContent(c.Request.Context(), ownerID, filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(bookings))
}

func (h *Handler) UpdateScheduledContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req model.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(validator.Describe(err)))
		return
	}

	booking, err := h.service.UpdateScheduledContent(c.Request.Context(), ownerID, id, req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(booking))
}

func (h *Handler) CancelScheduledContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.service.CancelScheduledContent(c.Request.Context(), ownerID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(booking))
}

func (h *Handler) RescheduleContent(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(validator.Describe(err)))
		return
	}

	booking, err := h.service.RescheduleContent(c.Request.Context(), ownerID, id, req.ScheduledTime)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(booking))
}

func (h *Handler) GetUpcoming(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	bookings, err := h.service.GetUpcomingScheduledContent(c.Request.Context(), ownerID, limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(bookings))
}

func (h *Handler) GetFailed(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	bookings, err := h.service.GetFailedScheduledContent(c.Request.Context(), ownerID, limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(bookings))
}

func (h *Handler) GetCalendar(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	calendar, err := h.service.GetSchedulingCalendar(c.Request.Context(), ownerID, scheduling.CalendarQuery{
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
		Platform:  c.Query("platform"),
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(calendar))
}

func (h *Handler) BulkSchedule(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	var req model.BulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(validator.Describe(err)))
		return
	}

	result, err := h.service.BulkScheduleContent(c.Request.Context(), ownerID, req.ScheduleItems)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(result))
}

func owner(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.OwnerID(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized("unauthenticated", nil))
		return uuid.Nil, false
	}
	return id, true
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid schedule ID"))
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
		return 0, false
	}
	return limit, true
}

func queryTime(c *gin.Context, key string, parse func(string) (time.Time, error)) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := parse(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
