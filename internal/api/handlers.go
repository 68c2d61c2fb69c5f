package api

import (
	"errors"
	"net/http"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/seatwatch"
	"strconv"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	service *seatwatch.Service
}

func tenantParam(c *gin.Context) (int64, bool) {
	tenant, err := strconv.ParseInt(c.Param("tenant"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidRequest, "tenant must be an integer id")
		return 0, false
	}
	return tenant, true
}

type setDestinationRequest struct {
	Destination string `json:"destination" binding:"required"`
}

func (h handlers) setDestination(c *gin.Context) {
	tenant, ok := tenantParam(c)
	if !ok {
		return
	}
	var req setDestinationRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	err = h.service.SetDestination(c.Request.Context(), actor(c), tenant, req.Destination)
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, h.service.ListStatus(tenant))
}

func (h handlers) listWatches(c *gin.Context) {
	tenant, ok := tenantParam(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, h.service.ListStatus(tenant))
}

type addWatchRequest struct {
	Section      string `json:"section" binding:"required"`
	Subject      string `json:"subject" binding:"required"`
	CourseNumber string `json:"course_number" binding:"required"`
	Year         int    `json:"year" binding:"required"`
	Term         string `json:"term" binding:"required"`
}

func (h handlers) addWatch(c *gin.Context) {
	tenant, ok := tenantParam(c)
	if !ok {
		return
	}
	var req addWatchRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	entry, err := h.service.AddWatch(c.Request.Context(), actor(c), tenant, req.Section, registry.Course{
		Subject:      req.Subject,
		CourseNumber: req.CourseNumber,
		Year:         req.Year,
		Term:         banner.Term(req.Term),
	})
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusCreated, entry)
}

func (h handlers) removeWatch(c *gin.Context) {
	tenant, ok := tenantParam(c)
	if !ok {
		return
	}
	entry, err := h.service.RemoveWatch(c.Request.Context(), actor(c), tenant, c.Param("section"))
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, entry)
}

func (h handlers) unsubscribe(c *gin.Context) {
	tenant, ok := tenantParam(c)
	if !ok {
		return
	}
	entry, err := h.service.Unsubscribe(
		c.Request.Context(), actor(c), tenant,
		c.Param("section"), c.Param("subscriber"),
	)
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, entry)
}

func (h handlers) sessionStatus(c *gin.Context) {
	status, err := h.service.SessionStatus(actor(c))
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, status)
}

func (h handlers) forceRefresh(c *gin.Context) {
	ok, err := h.service.ForceRefresh(c.Request.Context(), actor(c))
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"refreshed": ok})
}

func (h handlers) pollNow(c *gin.Context) {
	report, err := h.service.PollNow(c.Request.Context(), actor(c))
	if err != nil {
		failWithError(c, err)
		return
	}
	success(c, http.StatusOK, report)
}

var errSectionRequired = errors.New("section is required")

type courseQuery struct {
	Subject string `form:"subject" binding:"required"`
	Course  string `form:"course" binding:"required"`
	Year    int    `form:"year" binding:"required"`
	Term    string `form:"term" binding:"required"`
	Section string `form:"section"`
}

type seatsResponse struct {
	Section string `json:"section"`
	Status  string `json:"status"`
	Seats   *int   `json:"seats,omitempty"`
}

func (h handlers) querySeats(c *gin.Context) {
	var q courseQuery
	err := c.ShouldBindQuery(&q)
	if err == nil && q.Section == "" {
		err = errSectionRequired
	}
	if err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	result, err := h.service.Query(c.Request.Context(), banner.Query{
		Subject:      q.Subject,
		CourseNumber: q.Course,
		Year:         q.Year,
		Term:         banner.Term(q.Term),
		Section:      q.Section,
	})
	if err != nil {
		failWithError(c, err)
		return
	}

	switch result.Status {
	case banner.SeatsFound:
		seats := result.Seats
		success(c, http.StatusOK, seatsResponse{Section: q.Section, Status: result.Status.String(), Seats: &seats})
	case banner.SeatsNotFound:
		fail(c, http.StatusNotFound, ErrNotFound, "section "+q.Section+" is not in the search results")
	default:
		fail(c, http.StatusBadGateway, ErrRequestFailed, result.Err.Error())
	}
}

func (h handlers) sections(c *gin.Context) {
	var q courseQuery
	err := c.ShouldBindQuery(&q)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	records, err := h.service.Sections(c.Request.Context(), q.Subject, q.Course, q.Year, banner.Term(q.Term))
	if err != nil {
		if errors.Is(err, banner.ErrInvalidTerm) {
			failWithError(c, err)
			return
		}
		fail(c, http.StatusBadGateway, ErrRequestFailed, err.Error())
		return
	}
	success(c, http.StatusOK, records)
}
