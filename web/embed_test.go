package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestSPAHandlerFallsBackToIndex(t *testing.T) {
	root := fstest.MapFS{
		"index.html": {Data: []byte("<html>hope</html>")},
		"app.js":     {Data: []byte("console.log('map')")},
	}
	h := spaHandler(root)

	tests := []struct {
		path string
		want string
	}{
		{"/", "<html>hope</html>"},
		{"/app.js", "console.log('map')"},
		{"/stories/42", "<html>hope</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestEmbeddedIndexExists(t *testing.T) {
	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hope")
}
