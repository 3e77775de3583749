package api

import (
	"net/http"

	"github.com/ashureev/hope-map/internal/corpus"
	"github.com/go-chi/chi/v5"
)

const msgStoriesUnavailable = "Could not load story data. Run the story preparation step first."

// StoriesHandler serves the story corpus to the map.
type StoriesHandler struct {
	corpus *corpus.Corpus
}

// NewStoriesHandler creates a stories handler. A nil corpus means the data
// failed to load.
func NewStoriesHandler(c *corpus.Corpus) *StoriesHandler {
	return &StoriesHandler{corpus: c}
}

// RegisterRoutes registers the stories route.
func (h *StoriesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/stories", h.List)
}

// List handles GET /api/stories.
func (h *StoriesHandler) List(w http.ResponseWriter, _ *http.Request) {
	if h.corpus == nil || h.corpus.Len() == 0 {
		Error(w, http.StatusInternalServerError, msgStoriesUnavailable)
		return
	}
	JSON(w, http.StatusOK, h.corpus.Stories())
}
