// Package api is the Fiber control surface: it starts ingestion and
// harvest workflows and answers document and workflow lookups. The
// read-only public browser lives in internal/presentation; this API is
// for operators.
package api

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"

	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

// Handlers answers the control API requests. Workflow-starting handlers
// go through the Temporal client; document lookups read storage
// directly.
type Handlers struct {
	temporal  client.Client
	store     *storage.HybridStorage
	taskQueue string
}

func NewHandlers(temporal client.Client, store *storage.HybridStorage, taskQueue string) *Handlers {
	return &Handlers{
		temporal:  temporal,
		store:     store,
		taskQueue: taskQueue,
	}
}

// Health reports liveness. Storage depth checks live under
// /api/v1/storage/health.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "observatorio",
		"timestamp": time.Now().UTC(),
	})
}

// IngestPublicationRequest asks for one URL to be run through the
// ingestion pipeline.
type IngestPublicationRequest struct {
	URL         string            `json:"url"`
	Type        string            `json:"type"`
	Source      string            `json:"source"`
	PublishedAt time.Time         `json:"published_at"`
	Metadata    map[string]string `json:"metadata"`
}

// IngestPublicationResponse identifies the started workflow.
type IngestPublicationResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// IngestPublication starts a PublicationIngestionWorkflow for one URL.
func (h *Handlers) IngestPublication(c *fiber.Ctx) error {
	var req IngestPublicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if err := validateIngestRequest(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": err.Error(),
		})
	}

	workflowID := fmt.Sprintf("ingest-api-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.PublicationIngestionWorkflow, workflows.PublicationInput{
		URL:         req.URL,
		Type:        req.Type,
		Source:      req.Source,
		PublishedAt: req.PublishedAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("Failed to start ingestion workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start ingestion",
			"details": err.Error(),
		})
	}

	log.Info().Str("workflow_id", workflowID).Str("url", req.URL).Msg("Started publication ingestion")
	return c.Status(fiber.StatusAccepted).JSON(IngestPublicationResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
	})
}

// FileUploadResponse identifies the workflow processing an upload.
type FileUploadResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	Size       int64  `json:"size"`
}

// 50MB covers the largest gazette attachments seen so far.
const maxUploadSize = 50 * 1024 * 1024

// UploadDocument accepts a multipart file upload and starts a
// FileIngestionWorkflow over its content.
func (h *Handlers) UploadDocument(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "No file uploaded or invalid file format",
			"details": err.Error(),
		})
	}

	if file.Size > maxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large: %d bytes, maximum is %d", file.Size, maxUploadSize),
		})
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if ext == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File must have an extension",
		})
	}
	if !supportedUploadTypes[ext] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Unsupported file type %q, supported: %s", ext, strings.Join(supportedUploadList(), ", ")),
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to open uploaded file",
			"details": err.Error(),
		})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to read file content",
			"details": err.Error(),
		})
	}

	metadata := map[string]string{
		"filename":    file.Filename,
		"file_size":   fmt.Sprintf("%d", file.Size),
		"upload_time": time.Now().UTC().Format(time.RFC3339),
	}
	for _, field := range []string{"title", "description", "tags"} {
		if v := c.FormValue(field); v != "" {
			metadata[field] = v
		}
	}

	workflowID := fmt.Sprintf("upload-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.FileIngestionWorkflow, workflows.FileIngestionInput{
		Filename:    file.Filename,
		ContentType: ext,
		Content:     content,
		Metadata:    metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("filename", file.Filename).Msg("Failed to start file ingestion workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start file processing",
			"details": err.Error(),
		})
	}

	log.Info().Str("workflow_id", workflowID).Str("filename", file.Filename).Int64("size", file.Size).Msg("Started file ingestion")
	return c.Status(fiber.StatusAccepted).JSON(FileUploadResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Filename:   file.Filename,
		FileType:   ext,
		Size:       file.Size,
	})
}

// PublicationSummary is the list-view projection of a stored document.
type PublicationSummary struct {
	ID          string    `json:"id"`
	Outlet      string    `json:"outlet"`
	Type        string    `json:"type"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Cleaned     bool      `json:"cleaned"`
}

func summarize(doc *document.Document) PublicationSummary {
	return PublicationSummary{
		ID:          doc.ID,
		Outlet:      doc.Source.Outlet,
		Type:        doc.Source.Type,
		URL:         doc.Source.URL,
		Title:       doc.Content.Metadata["title"],
		PublishedAt: doc.PublishedAt,
		Cleaned:     doc.Content.Metadata["cleaned"] == "true",
	}
}

// GetDocument returns one stored document in full. The raw payload is
// not serialized, only the extracted and redacted text.
func (h *Handlers) GetDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document ID is required",
		})
	}

	doc, err := h.store.GetDocument(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
			"id":    id,
		})
	}
	return c.JSON(doc)
}

// ListDocuments returns stored documents filtered by outlet, type, year
// and month, newest first, paginated.
func (h *Handlers) ListDocuments(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filters := map[string]string{}
	for _, key := range []string{"outlet", "type", "year", "month"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	docs, err := h.store.ListDocuments(c.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list documents")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to list documents",
			"details": err.Error(),
		})
	}

	total := len(docs)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	summaries := make([]PublicationSummary, 0, end-start)
	for _, doc := range docs[start:end] {
		summaries = append(summaries, summarize(doc))
	}

	return c.JSON(fiber.Map{
		"documents": summaries,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// WorkflowStatusResponse mirrors Temporal's view of one workflow.
type WorkflowStatusResponse struct {
	WorkflowID string     `json:"workflow_id"`
	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// GetWorkflow reports the status of a previously started workflow.
func (h *Handlers) GetWorkflow(c *fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Workflow ID is required",
		})
	}

	resp, err := h.temporal.DescribeWorkflowExecution(c.Context(), workflowID, "")
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":       "Workflow not found",
			"workflow_id": workflowID,
		})
	}

	info := resp.GetWorkflowExecutionInfo()
	response := WorkflowStatusResponse{
		WorkflowID: workflowID,
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		response.CloseTime = &closeTime
	}
	return c.JSON(response)
}

// ScheduledHarvestRequest configures a recurring harvest of one source.
type ScheduledHarvestRequest struct {
	Source        string            `json:"source"`
	LookbackHours int               `json:"lookback_hours"`
	IntervalHours int               `json:"interval_hours"`
	MaxRuns       int               `json:"max_runs"`
	Metadata      map[string]string `json:"metadata"`
}

// ScheduledHarvestResponse identifies the started schedule workflow.
type ScheduledHarvestResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
}

// CreateScheduledHarvest starts a ScheduledHarvestWorkflow for one
// source.
func (h *Handlers) CreateScheduledHarvest(c *fiber.Ctx) error {
	var req ScheduledHarvestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if !harvestSources[req.Source] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Unknown source %q, known sources: %s", req.Source, strings.Join(harvestSourceList(), ", ")),
		})
	}

	workflowID := fmt.Sprintf("harvest-%s-%s", req.Source, uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.ScheduledHarvestWorkflow, workflows.HarvestScheduleInput{
		Source:   req.Source,
		Lookback: time.Duration(req.LookbackHours) * time.Hour,
		Interval: time.Duration(req.IntervalHours) * time.Hour,
		MaxRuns:  req.MaxRuns,
		Metadata: req.Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("source", req.Source).Msg("Failed to start scheduled harvest")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start scheduled harvest",
			"details": err.Error(),
		})
	}

	log.Info().Str("workflow_id", workflowID).Str("source", req.Source).Msg("Started scheduled harvest")
	return c.Status(fiber.StatusCreated).JSON(ScheduledHarvestResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Source:     req.Source,
	})
}

// BatchIngestionRequest carries a set of publications to ingest at once.
type BatchIngestionRequest struct {
	Documents []IngestPublicationRequest `json:"documents"`
}

// BatchIngestionResponse identifies the started batch workflow.
type BatchIngestionResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Count      int    `json:"count"`
}

// CreateBatchIngestion starts a BatchIngestionWorkflow over the given
// publications.
func (h *Handlers) CreateBatchIngestion(c *fiber.Ctx) error {
	var req BatchIngestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if len(req.Documents) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one document is required",
		})
	}

	documents := make([]workflows.PublicationInput, 0, len(req.Documents))
	for i := range req.Documents {
		doc := &req.Documents[i]
		if err := validateIngestRequest(doc); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   fmt.Sprintf("Document %d failed validation", i),
				"details": err.Error(),
			})
		}
		documents = append(documents, workflows.PublicationInput{
			URL:         doc.URL,
			Type:        doc.Type,
			Source:      doc.Source,
			PublishedAt: doc.PublishedAt,
			Metadata:    doc.Metadata,
		})
	}

	workflowID := fmt.Sprintf("batch-%s", uuid.New().String())
	we, err := h.temporal.ExecuteWorkflow(c.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.BatchIngestionWorkflow, documents)
	if err != nil {
		log.Error().Err(err).Int("count", len(documents)).Msg("Failed to start batch ingestion")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start batch ingestion",
			"details": err.Error(),
		})
	}

	log.Info().Str("workflow_id", workflowID).Int("count", len(documents)).Msg("Started batch ingestion")
	return c.Status(fiber.StatusAccepted).JSON(BatchIngestionResponse{
		WorkflowID: we.GetID(),
		RunID:      we.GetRunID(),
		Count:      len(documents),
	})
}

// Validation.

var supportedIngestTypes = map[string]bool{
	"text": true, "html": true, "pdf": true, "docx": true, "doc": true,
	"png": true, "jpg": true, "jpeg": true, "tiff": true, "bmp": true, "gif": true,
}

var supportedUploadTypes = map[string]bool{
	"txt": true, "html": true, "pdf": true, "docx": true, "doc": true,
	"png": true, "jpg": true, "jpeg": true, "tiff": true, "bmp": true, "gif": true,
}

// harvestSources are the sources the workers carry collectors for.
var harvestSources = map[string]bool{
	"gaceta": true, "jornada": true, "proceso": true,
	"economista": true, "financiero": true, "animalpolitico": true,
}

func supportedUploadList() []string {
	return sortedKeys(supportedUploadTypes)
}

func harvestSourceList() []string {
	return sortedKeys(harvestSources)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateIngestRequest(req *IngestPublicationRequest) error {
	req.URL = strings.TrimSpace(req.URL)
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))

	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if req.Type == "" {
		return fmt.Errorf("document type is required")
	}
	if !supportedIngestTypes[req.Type] {
		return fmt.Errorf("unsupported document type: %s", req.Type)
	}
	if req.Source == "" {
		req.Source = "ingest"
	} else if req.Source != "ingest" && !harvestSources[req.Source] {
		return fmt.Errorf("unknown source: %s", req.Source)
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if err := validateURLSafety(parsed); err != nil {
		return fmt.Errorf("URL not allowed: %w", err)
	}

	return validateMetadata(req.Metadata)
}

var privateHostPatterns = []string{
	`^10\.`, `^172\.(1[6-9]|2[0-9]|3[01])\.`, `^192\.168\.`,
	`^169\.254\.`, `^fc00:`, `^ff00:`,
}

// validateURLSafety rejects URLs the fetcher must never be pointed at:
// non-HTTP schemes and private or loopback hosts.
func validateURLSafety(parsed *url.URL) error {
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("localhost access not allowed")
	}
	for _, pattern := range privateHostPatterns {
		if matched, _ := regexp.MatchString(pattern, host); matched {
			return fmt.Errorf("private address access not allowed")
		}
	}
	return nil
}

const (
	maxMetadataKeys = 50
	maxKeyLength    = 100
	maxValueLength  = 1000
)

var metadataKeyRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func validateMetadata(metadata map[string]string) error {
	if len(metadata) > maxMetadataKeys {
		return fmt.Errorf("too many metadata keys: %d (max %d)", len(metadata), maxMetadataKeys)
	}
	for key, value := range metadata {
		if len(key) > maxKeyLength {
			return fmt.Errorf("metadata key too long: %d characters (max %d)", len(key), maxKeyLength)
		}
		if !metadataKeyRe.MatchString(key) {
			return fmt.Errorf("invalid metadata key: %s", key)
		}
		if len(value) > maxValueLength {
			return fmt.Errorf("metadata value too long for key %q: %d characters (max %d)", key, len(value), maxValueLength)
		}
	}
	return nil
}
