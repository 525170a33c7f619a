package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins []string

	/* One report download per client every DownloadInterval, DownloadBurst at once. */
	DownloadInterval time.Duration
	DownloadBurst    int
}

const (
	defaultDownloadInterval = 2 * time.Second
	defaultDownloadBurst    = 1
)

func NewServer(config ServerConfig, h *Handler, tokens TokenValidator) *http.Server {
	router := mux.NewRouter()
	router.Use(requestTimeout(config.RequestTimeout))
	router.HandleFunc("/ping", ping).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	/* Public routes. */
	api.HandleFunc("/auth/signup", h.signUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", h.signIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", h.refreshTokens).Methods(http.MethodPost)
	limitDownloads := rateLimit(newClientLimiter(config.downloadLimits()))
	api.Handle("/reports/{id}/download", limitDownloads(http.HandlerFunc(h.downloadReport))).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(authenticate(tokens))

	protected.HandleFunc("/auth/logout", h.logOut).Methods(http.MethodPost)

	protected.HandleFunc("/books", h.listBooks).Methods(http.MethodGet)
	protected.HandleFunc("/books", h.createBook).Methods(http.MethodPost)
	protected.HandleFunc("/books/{id}", h.getBookById).Methods(http.MethodGet)
	protected.HandleFunc("/books/{id}", h.updateBook).Methods(http.MethodPatch)
	protected.HandleFunc("/books/{id}", h.deleteBook).Methods(http.MethodDelete)

	protected.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	protected.HandleFunc("/users/{id}", h.getUserById).Methods(http.MethodGet)
	protected.HandleFunc("/users/{id}", h.updateUser).Methods(http.MethodPatch)
	protected.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)

	protected.HandleFunc("/users/{id}/borrow", h.borrowBooks).Methods(http.MethodPost)
	protected.HandleFunc("/users/{id}/return", h.returnBooks).Methods(http.MethodPost)
	protected.HandleFunc("/users/{id}/borrowings", h.listUserBorrowings).Methods(http.MethodGet)

	protected.HandleFunc("/reports/generate", h.generateReport).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	server := http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &server
}

func (c ServerConfig) downloadLimits() (time.Duration, int) {
	interval, burst := c.DownloadInterval, c.DownloadBurst
	if interval <= 0 {
		interval = defaultDownloadInterval
	}
	if burst <= 0 {
		burst = defaultDownloadBurst
	}
	return interval, burst
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
