package handlers

import (
	"net/http"

	"github.com/upb/nexus-gateway/app"
	"github.com/upb/nexus-gateway/utils"
)

// ModelInfo is one advertised model with the backend it routes to
type ModelInfo struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	Backend     string `json:"backend"`
	Configured  bool   `json:"configured"`
}

// ListModelsHandler handles GET /api/v1/models
func ListModelsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := deps.Catalog.List()
		response := make([]ModelInfo, 0, len(models))
		for _, m := range models {
			backend := deps.Router.Route(m.ID)
			response = append(response, ModelInfo{
				ID:          m.ID,
				Provider:    m.Provider,
				Status:      m.Status,
				Description: m.Description,
				Backend:     backend.Name(),
				Configured:  backend.Configured(),
			})
		}
		_ = utils.WriteOK(w, response)
	}
}
