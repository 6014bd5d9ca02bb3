package reporting

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dash := api.Group("/dashboard", auth.RequireRole("admin"))
	dash.GET("/stats", h.Stats)
	dash.GET("/samples-by-analysis", h.SamplesByAnalysis)
	dash.GET("/orders-by-weekday", h.OrdersByWeekday)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) SamplesByAnalysis(c echo.Context) error {
	counts, err := h.svc.SamplesByAnalysis(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) OrdersByWeekday(c echo.Context) error {
	counts, err := h.svc.OrdersByWeekday(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}
