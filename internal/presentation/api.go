package presentation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

// API is the public read-only archive browser. It serves rendered,
// redacted documents from the archive; nothing here mutates state.
type API struct {
	renderer *Renderer
	archive  Archive
	config   *APIConfig
}

// APIConfig configures the browser server.
type APIConfig struct {
	Port       int    `json:"port"`
	Host       string `json:"host"`
	BasePath   string `json:"base_path"`
	EnableCORS bool   `json:"enable_cors"`
}

// Search and statistics scan caps. The archive index is in memory, so
// these bound response time, not correctness.
const (
	searchScanLimit = 1000
	statsScanLimit  = 10000
)

// NewAPI creates the browser API. A nil config listens on :8081 under
// /api/v1 with CORS enabled.
func NewAPI(renderer *Renderer, archive Archive, config *APIConfig) *API {
	if config == nil {
		config = &APIConfig{
			Port:       8081,
			Host:       "0.0.0.0",
			BasePath:   "/api/v1",
			EnableCORS: true,
		}
	}

	return &API{
		renderer: renderer,
		archive:  archive,
		config:   config,
	}
}

// Start runs the server until the listener fails.
func (api *API) Start() error {
	addr := fmt.Sprintf("%s:%d", api.config.Host, api.config.Port)
	log.Info().Str("address", addr).Msg("Starting archive browser")

	return http.ListenAndServe(addr, api.Handler())
}

// Handler returns the routed handler with middleware applied. Servers
// that manage their own listener and the tests both mount this.
func (api *API) Handler() http.Handler {
	return api.addMiddleware(api.setupRoutes())
}

func (api *API) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	base := router.PathPrefix(api.config.BasePath).Subrouter()

	base.HandleFunc("/documents", api.listDocuments).Methods("GET")
	base.HandleFunc("/documents/{id}", api.getDocument).Methods("GET")
	base.HandleFunc("/documents/{id}/export", api.exportDocument).Methods("GET")

	base.HandleFunc("/search", api.searchDocuments).Methods("GET", "POST")

	base.HandleFunc("/outlets", api.listOutlets).Methods("GET")
	base.HandleFunc("/outlets/{name}", api.getOutlet).Methods("GET")

	base.HandleFunc("/statistics", api.getStatistics).Methods("GET")
	base.HandleFunc("/health", api.healthCheck).Methods("GET")

	return router
}

func (api *API) addMiddleware(router http.Handler) http.Handler {
	if api.config.EnableCORS {
		router = api.corsMiddleware(router)
	}
	router = api.loggingMiddleware(router)

	return router
}

// Handler implementations

func (api *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	pageSize, _ := strconv.Atoi(params.Get("page_size"))
	if pageSize <= 0 {
		pageSize = 20
	}
	pageNumber, _ := strconv.Atoi(params.Get("page"))
	if pageNumber <= 0 {
		pageNumber = 1
	}
	format := params.Get("format")
	if format == "" {
		format = "json"
	}

	filters := map[string]string{}
	for _, key := range []string{"outlet", "type", "year", "month"} {
		if v := params.Get(key); v != "" {
			filters[key] = v
		}
	}

	docs, err := api.archive.ListDocuments(r.Context(), filters)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to list documents", err)
		return
	}

	options := &CollectionOptions{
		RenderOptions: RenderOptions{
			Format:          OutputFormat(format),
			IncludeMetadata: params.Get("metadata") == "true",
			MaxLength:       500,
		},
		PageSize:       pageSize,
		PageNumber:     pageNumber,
		ShowStatistics: params.Get("stats") == "true",
		SortBy:         params.Get("sort_by"),
		SortOrder:      params.Get("sort_order"),
		GroupBy:        params.Get("group_by"),
	}

	collection, err := api.renderer.RenderCollection(docs, options)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to render collection", err)
		return
	}

	api.sendJSON(w, collection)
}

func (api *API) getDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	docID := vars["id"]

	doc, err := api.archive.GetDocument(r.Context(), docID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			api.sendError(w, http.StatusNotFound, "Document not found", err)
		} else {
			api.sendError(w, http.StatusInternalServerError, "Failed to get document", err)
		}
		return
	}

	params := r.URL.Query()
	format := params.Get("format")
	if format == "" {
		format = "json"
	}

	options := &RenderOptions{
		Format:          OutputFormat(format),
		IncludeMetadata: params.Get("metadata") != "false",
		IncludeTokens:   params.Get("tokens") == "true",
		MaxLength:       0, // no truncation for a single document
	}
	if format == "html" {
		options.Theme = params.Get("theme")
		if options.Theme == "" {
			options.Theme = "light"
		}
	}

	rendered, err := api.renderer.RenderDocument(doc, options)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to render document", err)
		return
	}

	switch format {
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(rendered.Content))
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(rendered.Content))
	case "plain":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(rendered.Content))
	default:
		api.sendJSON(w, rendered)
	}
}

func (api *API) exportDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	docID := vars["id"]

	doc, err := api.archive.GetDocument(r.Context(), docID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			api.sendError(w, http.StatusNotFound, "Document not found", err)
		} else {
			api.sendError(w, http.StatusInternalServerError, "Failed to get document", err)
		}
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	data, err := api.renderer.ExportDocument(doc, ExportFormat(format))
	if err != nil {
		api.sendError(w, http.StatusBadRequest, "Invalid export format", err)
		return
	}

	switch ExportFormat(format) {
	case ExportJSON:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", docID+".json"))
	case ExportMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", docID+".md"))
	case ExportHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", docID+".html"))
	}

	w.Write(data)
}

func (api *API) searchDocuments(w http.ResponseWriter, r *http.Request) {
	var query string

	if r.Method == "GET" {
		query = r.URL.Query().Get("q")
	} else {
		var searchReq struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&searchReq); err != nil {
			api.sendError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		query = searchReq.Query
	}

	if query == "" {
		api.sendError(w, http.StatusBadRequest, "Query parameter is required", nil)
		return
	}

	params := r.URL.Query()

	// Substring scan over the public text. Good enough for an archive
	// this size; a real index can replace it behind the same endpoint.
	filters := map[string]string{"limit": strconv.Itoa(searchScanLimit)}
	if outlet := params.Get("outlet"); outlet != "" {
		filters["outlet"] = outlet
	}

	allDocs, err := api.archive.ListDocuments(r.Context(), filters)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to search documents", err)
		return
	}

	var matchedDocs []*document.Document
	scores := make(map[string]float64)
	queryLower := strings.ToLower(query)

	searchStart := time.Now()
	for _, doc := range allDocs {
		text := publicText(doc)
		textLower := strings.ToLower(text)
		if strings.Contains(textLower, queryLower) {
			matchedDocs = append(matchedDocs, doc)
			count := strings.Count(textLower, queryLower)
			if words := len(strings.Fields(text)); words > 0 {
				scores[doc.ID] = float64(count) / float64(words)
			}
		}
	}

	results := &SearchResults{
		Query:      query,
		Documents:  matchedDocs,
		Scores:     scores,
		TotalHits:  len(matchedDocs),
		SearchTime: time.Since(searchStart),
	}

	pageSize, _ := strconv.Atoi(params.Get("page_size"))
	if pageSize <= 0 {
		pageSize = 20
	}
	pageNumber, _ := strconv.Atoi(params.Get("page"))
	if pageNumber <= 0 {
		pageNumber = 1
	}

	options := &SearchOptions{
		CollectionOptions: CollectionOptions{
			RenderOptions: RenderOptions{
				Format:         OutputFormat(params.Get("format")),
				HighlightTerms: []string{query},
				MaxLength:      200,
			},
			PageSize:   pageSize,
			PageNumber: pageNumber,
		},
		ShowSnippets:     params.Get("snippets") != "false",
		SnippetLength:    150,
		ShowFacets:       params.Get("facets") == "true",
		HighlightMatches: params.Get("highlight") != "false",
	}

	rendered, err := api.renderer.RenderSearch(results, options)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to render search results", err)
		return
	}

	api.sendJSON(w, rendered)
}

func (api *API) listOutlets(w http.ResponseWriter, r *http.Request) {
	docs, err := api.archive.ListDocuments(r.Context(), map[string]string{"limit": strconv.Itoa(statsScanLimit)})
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to list outlets", err)
		return
	}

	counts := make(map[string]int)
	for _, doc := range docs {
		if doc.Source.Outlet != "" {
			counts[doc.Source.Outlet]++
		}
	}

	outlets := make([]map[string]interface{}, 0, len(counts))
	for name, count := range counts {
		outlets = append(outlets, map[string]interface{}{
			"name":  name,
			"count": count,
		})
	}
	sort.Slice(outlets, func(i, j int) bool {
		return outlets[i]["name"].(string) < outlets[j]["name"].(string)
	})

	api.sendJSON(w, map[string]interface{}{
		"outlets": outlets,
		"total":   len(outlets),
	})
}

func (api *API) getOutlet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	outletName := vars["name"]

	docs, err := api.archive.ListDocuments(r.Context(), map[string]string{"outlet": outletName})
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to get outlet", err)
		return
	}

	params := r.URL.Query()
	pageSize, _ := strconv.Atoi(params.Get("page_size"))
	if pageSize <= 0 {
		pageSize = 20
	}
	pageNumber, _ := strconv.Atoi(params.Get("page"))
	if pageNumber <= 0 {
		pageNumber = 1
	}

	options := &CollectionOptions{
		RenderOptions: RenderOptions{
			Format:          OutputFormat(params.Get("format")),
			IncludeMetadata: params.Get("metadata") == "true",
			MaxLength:       500,
		},
		PageSize:       pageSize,
		PageNumber:     pageNumber,
		ShowStatistics: true,
	}

	collection, err := api.renderer.RenderCollection(docs, options)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to render outlet collection", err)
		return
	}

	api.sendJSON(w, collection)
}

func (api *API) getStatistics(w http.ResponseWriter, r *http.Request) {
	allDocs, err := api.archive.ListDocuments(r.Context(), map[string]string{"limit": strconv.Itoa(statsScanLimit)})
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}

	stats := api.renderer.calculateStatistics(allDocs)

	api.sendJSON(w, map[string]interface{}{
		"statistics":      stats,
		"total_documents": len(allDocs),
		"archive":         api.archive.GetStats(),
		"timestamp":       time.Now(),
	})
}

func (api *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := api.archive.Health(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "degraded",
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	api.sendJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// Helper methods

func (api *API) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (api *API) sendError(w http.ResponseWriter, status int, message string, err error) {
	log.Error().Err(err).Str("message", message).Int("status", status).Msg("Browser API error")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}
	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}

// Middleware implementations

func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (api *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Browser request")
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
