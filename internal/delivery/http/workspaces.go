package http

import (
	"net/http"

	"insight-reports/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupWorkspaces(base *echo.Group) {
	v1 := base.Group("/v1/workspaces")
	{
		v1.PUT("", h.upsertWorkspace)
		v1.GET("", h.listWorkspaces)
		v1.POST("/:id/deactivate", h.deactivateWorkspace)
	}
}

func (h *HttpAPIHandler) upsertWorkspace(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.UpsertWorkspaceRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	credential, err := h.service.ReportManagerService.UpsertWorkspace(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}
	// Never echo the secret back.
	credential.AccessSecret = ""
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("workspace saved", credential))
}

func (h *HttpAPIHandler) listWorkspaces(c echo.Context) error {
	credentials, err := h.service.ReportManagerService.ListWorkspaces(c.Request().Context(), c.QueryParam("tenant_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	for i := range credentials {
		credentials[i].AccessSecret = ""
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("workspaces", credentials))
}

func (h *HttpAPIHandler) deactivateWorkspace(c echo.Context) error {
	if err := h.service.ReportManagerService.DeactivateWorkspace(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("workspace deactivated", nil))
}
