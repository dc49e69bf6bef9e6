package handlers

import (
	"net/http"
	"os"

	"aquadetect/internal/logger"
)

// IndexHandler serves the landing page on GET / and hands POST / to detect.
func IndexHandler(indexFile string, detect http.Handler, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			if _, err := os.Stat(indexFile); err != nil {
				logger.Warning("Index page not available: %v", err)
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, indexFile)
		case http.MethodPost:
			detect.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

// StaticHandler serves files from dir under the given URL prefix without directory listings.
func StaticHandler(prefix, dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))
}
