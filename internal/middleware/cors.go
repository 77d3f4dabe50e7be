package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

const defaultFrontendOrigin = "http://localhost:3000"

// AllowedOrigins parses a comma-separated origin list, dropping blanks and
// duplicates. An empty list falls back to the local frontend.
func AllowedOrigins(raw string) []string {
	var origins []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{defaultFrontendOrigin}
	}
	return origins
}

// CORS allows the frontend origins in frontendURL to call the API with credentials
func CORS(frontendURL string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   AllowedOrigins(frontendURL),
		AllowCredentials: true,
		MaxAge:           86400,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})
	return c.Handler
}
