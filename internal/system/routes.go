package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/apperrors"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo()
		if err != nil {
			return apperrors.NewInternalError("Failed to get system info")
		}
		return api.WriteResource(w, http.StatusOK, struct {
			Object string `json:"object"`
			*SystemInfo
		}{Object: "system_info", SystemInfo: info})
	}
}
