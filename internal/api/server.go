package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// NewServer creates an HTTP server with all routes configured. When
// adminAPIKey is non-empty the upload endpoint requires it as a Bearer token.
func NewServer(port string, handler *Handler, adminAPIKey string) *http.Server {
	mux := http.NewServeMux()

	uploadHandler := http.HandlerFunc(handler.UploadWorkbook)
	if adminAPIKey != "" {
		mux.Handle("POST /api/v1/uploads", requireAuth(adminAPIKey, uploadHandler))
	} else {
		mux.Handle("POST /api/v1/uploads", uploadHandler)
	}

	mux.HandleFunc("GET /api/v1/uploads", handler.ListUploads)
	mux.HandleFunc("GET /api/v1/clients", handler.ListClients)
	mux.HandleFunc("GET /api/v1/portfolios", handler.ListPortfolios)
	mux.HandleFunc("GET /api/v1/billing-tiers", handler.ListBillingTiers)
	mux.HandleFunc("GET /api/v1/assets", handler.ListAssets)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
