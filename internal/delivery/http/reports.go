package http

import (
	"net/http"
	"strconv"

	"insight-reports/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupReports(base *echo.Group) {
	v1 := base.Group("/v1/reports")
	{
		v1.POST("", h.createReport)
		v1.GET("", h.listReports)
		v1.GET("/:id", h.getReport)
		v1.PATCH("/:id", h.updateReport)
		v1.DELETE("/:id", h.deleteReport)
		v1.POST("/:id/enable", h.enableReport)
		v1.POST("/:id/disable", h.disableReport)
		v1.POST("/:id/run", h.runReportNow)
		v1.GET("/:id/executions", h.listExecutions)
	}
}

func (h *HttpAPIHandler) createReport(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.CreateReportRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	report, err := h.service.ReportManagerService.Create(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "report created", report))
}

func (h *HttpAPIHandler) listReports(c echo.Context) error {
	reports, err := h.service.ReportManagerService.List(c.Request().Context(), c.QueryParam("owner_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("reports", reports))
}

func (h *HttpAPIHandler) getReport(c echo.Context) error {
	report, err := h.service.ReportManagerService.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("report", report))
}

func (h *HttpAPIHandler) updateReport(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.UpdateReportRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	report, err := h.service.ReportManagerService.Update(ctx, c.Param("id"), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("report updated", report))
}

func (h *HttpAPIHandler) deleteReport(c echo.Context) error {
	if err := h.service.ReportManagerService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("report deleted", nil))
}

func (h *HttpAPIHandler) enableReport(c echo.Context) error {
	report, err := h.service.ReportManagerService.SetEnabled(c.Request().Context(), c.Param("id"), true)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("report enabled", report))
}

func (h *HttpAPIHandler) disableReport(c echo.Context) error {
	report, err := h.service.ReportManagerService.SetEnabled(c.Request().Context(), c.Param("id"), false)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("report disabled", report))
}

func (h *HttpAPIHandler) runReportNow(c echo.Context) error {
	execution, err := h.service.SchedulerService.RunReportNow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewBaseResponse(http.StatusAccepted, "report run started", execution))
}

func (h *HttpAPIHandler) listExecutions(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("limit must be between 1 and 200"))
		}
		limit = parsed
	}

	executions, err := h.service.ReportManagerService.ListExecutions(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("executions", executions))
}
