//go:build !debug

package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"
)

// MaxAge sets caching headers for the embedded static content by file type.
func MaxAge(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var age time.Duration
		switch filepath.Ext(r.URL.Path) {
		case ".css", ".js":
			age = (time.Hour * 24) / time.Second
		case ".ico", ".png", ".svg":
			age = (time.Hour * 24 * 30) / time.Second
		default:
			// index.html must be revalidated so new builds are picked up:
			w.Header().Add("Cache-Control", "no-cache")
		}

		if age > 0 {
			w.Header().Add("Cache-Control", fmt.Sprintf("max-age=%d, public, must-revalidate", age))
		}

		h.ServeHTTP(w, r)
	})
}
