package http

import (
	"context"
	"errors"
	"net/http"

	"insight-reports/internal/dto"
	"insight-reports/internal/service"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, service *service.Service) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	h.echo.GET("/health", h.Health)

	base := h.echo.Group("/api")
	h.SetupReports(base)
	h.SetupWorkspaces(base)
	h.SetupJobs(base)
}

func (h *HttpAPIHandler) Health(c echo.Context) error {
	summary, err := h.service.ReportManagerService.Health(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, dto.NewBaseResponse(http.StatusServiceUnavailable, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, summary)
}

// errorResponse maps domain errors to HTTP statuses.
func errorResponse(c echo.Context, err error) error {
	var validationErr *dto.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(validationErr.Error()))
	}
	switch {
	case errors.Is(err, dto.ErrReportNotFound),
		errors.Is(err, dto.ErrExecutionNotFound),
		errors.Is(err, dto.ErrWorkspaceNotFound):
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil))
	case errors.Is(err, dto.ErrClaimLost):
		return c.JSON(http.StatusConflict, dto.NewBaseResponse(http.StatusConflict, "report is already running", nil))
	case errors.Is(err, dto.ErrWorkersBusy):
		return c.JSON(http.StatusServiceUnavailable, dto.NewBaseResponse(http.StatusServiceUnavailable, "all report workers are busy, try again shortly", nil))
	default:
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
}
