// Package web embeds Hope's static map page (dist/) and serves it with
// index.html as the fallback for unknown paths.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves files from dist/. Paths with no matching file get
// index.html so client-side routes resolve.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return spaHandler(subFS)
}

func spaHandler(root fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		slog.Debug("web: serving index for unknown path", "path", r.URL.Path)
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
