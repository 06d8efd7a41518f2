package http

import (
	"net/http"

	"insight-reports/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.POST("/run", h.RunJobs)
		v1.POST("/reap", h.RunReaper)
		v1.POST("/purge", h.RunPurge)
	}
}

// RunJobs triggers one checker tick outside the cron cadence.
func (h *HttpAPIHandler) RunJobs(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Checker tick started", nil)
	if err := h.service.SchedulerService.Execute(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) RunReaper(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Stale execution sweep started", nil)
	if err := h.service.ReaperService.ReapStale(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) RunPurge(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Execution purge started", nil)
	if err := h.service.ReaperService.PurgeExpired(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}
