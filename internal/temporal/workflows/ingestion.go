package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// PublicationInput identifies one publication to run through the full
// pipeline. ID may be empty; the store activity then derives it from the
// URL. Source selects the rate-limit bucket and the archive collection.
type PublicationInput struct {
	ID          string            `json:"id,omitempty"`
	URL         string            `json:"url"`
	Type        string            `json:"type"` // html, pdf, docx, text
	Source      string            `json:"source"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FileIngestionInput carries an uploaded file through the same pipeline,
// skipping the fetch step.
type FileIngestionInput struct {
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Content     []byte            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PublicationIngestionWorkflow runs one publication through
// fetch → extract → clean/redact → preprocess → store → index → merge.
// Extraction failures on broken content are terminal; everything else
// retries with backoff.
func PublicationIngestionWorkflow(ctx workflow.Context, input PublicationInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting publication ingestion", "url", input.URL, "source", input.Source)

	ctx = workflow.WithActivityOptions(ctx, ingestionActivityOptions())

	var fetchResult FetchResult
	if err := workflow.ExecuteActivity(ctx, FetchPublicationActivityName, FetchInput{
		URL:    input.URL,
		Source: input.Source,
	}).Get(ctx, &fetchResult); err != nil {
		return err
	}

	if err := validateContentType(fetchResult.ContentType, input.Type); err != nil {
		// Sites lie about content types often enough that a mismatch is
		// only worth a warning; extraction sniffs the real format.
		logger.Warn("Content type mismatch", "expected", input.Type, "actual", fetchResult.ContentType, "error", err)
	}

	metadata := make(map[string]string, len(input.Metadata)+1)
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	if fetchResult.FinalURL != "" && fetchResult.FinalURL != input.URL {
		metadata["final_url"] = fetchResult.FinalURL
	}

	return runProcessingChain(ctx, processingChainInput{
		ID:          input.ID,
		URL:         input.URL,
		Type:        input.Type,
		Source:      input.Source,
		Content:     fetchResult.Content,
		PublishedAt: input.PublishedAt,
		Metadata:    metadata,
	})
}

// FileIngestionWorkflow processes an uploaded file (PDF, DOCX, images).
// The content is already in hand, so the chain starts at extraction.
func FileIngestionWorkflow(ctx workflow.Context, input FileIngestionInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting file ingestion", "filename", input.Filename, "type", input.ContentType)

	opts := ingestionActivityOptions()
	// OCR on scanned pages can run long.
	opts.StartToCloseTimeout = 10 * time.Minute
	ctx = workflow.WithActivityOptions(ctx, opts)

	return runProcessingChain(ctx, processingChainInput{
		Path:     input.Filename,
		Type:     input.ContentType,
		Source:   "upload",
		Content:  input.Content,
		Metadata: input.Metadata,
	})
}

type processingChainInput struct {
	ID          string
	URL         string
	Path        string
	Type        string
	Source      string
	Content     []byte
	PublishedAt time.Time
	Metadata    map[string]string
}

// runProcessingChain is the shared tail of both ingestion workflows:
// extract → clean/redact → preprocess → store → index → merge.
func runProcessingChain(ctx workflow.Context, input processingChainInput) error {
	logger := workflow.GetLogger(ctx)

	var extractResult ExtractResult
	if err := workflow.ExecuteActivity(ctx, ExtractTextActivityName, ExtractInput{
		Content: input.Content,
		Type:    input.Type,
	}).Get(ctx, &extractResult); err != nil {
		return err
	}

	metadata := make(map[string]string, len(input.Metadata)+len(extractResult.Metadata))
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	for k, v := range extractResult.Metadata {
		metadata[k] = v
	}

	var cleanResult CleanResult
	if err := workflow.ExecuteActivity(ctx, CleanContentActivityName, CleanInput{
		Text:     extractResult.Text,
		Metadata: metadata,
	}).Get(ctx, &cleanResult); err != nil {
		return err
	}

	// Tokens come from the redacted copy so place names stay out of the
	// analysis vocabulary.
	tokenSource := cleanResult.Redacted
	if tokenSource == "" {
		tokenSource = cleanResult.Text
	}
	var tokens []string
	if err := workflow.ExecuteActivity(ctx, PreprocessTextActivityName, tokenSource).Get(ctx, &tokens); err != nil {
		return err
	}

	var storeResult StoreResult
	if err := workflow.ExecuteActivity(ctx, StorePublicationActivityName, StoreInput{
		ID:          input.ID,
		URL:         input.URL,
		Path:        input.Path,
		Type:        input.Type,
		Source:      input.Source,
		Content:     input.Content,
		Text:        cleanResult.Text,
		Redacted:    cleanResult.Redacted,
		Tokens:      tokens,
		Metadata:    cleanResult.Metadata,
		PublishedAt: input.PublishedAt,
	}).Get(ctx, &storeResult); err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(ctx, IndexPublicationActivityName, storeResult.DocumentID).Get(ctx, nil); err != nil {
		return err
	}

	branchName := fmt.Sprintf("ingest/%s", storeResult.DocumentID)
	if err := workflow.ExecuteActivity(ctx, MergeIngestBranchActivityName, branchName).Get(ctx, nil); err != nil {
		return err
	}

	logger.Info("Publication ingestion completed", "documentID", storeResult.DocumentID, "ref", storeResult.Ref)
	return nil
}

func ingestionActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{"ExtractionError", "*extractor.ExtractionError"},
		},
	}
}

// validateContentType checks the served content type against the type the
// listing promised.
func validateContentType(contentType, expectedType string) error {
	contentType = strings.ToLower(contentType)
	switch strings.ToLower(expectedType) {
	case "pdf":
		if !strings.Contains(contentType, "application/pdf") {
			return fmt.Errorf("expected PDF but got %s", contentType)
		}
	case "html", "web":
		if !strings.Contains(contentType, "text/html") {
			return fmt.Errorf("expected HTML but got %s", contentType)
		}
	case "text":
		if !strings.Contains(contentType, "text/") {
			return fmt.Errorf("expected text but got %s", contentType)
		}
	case "docx", "doc":
		if !strings.Contains(contentType, "application/") {
			return fmt.Errorf("expected a document but got %s", contentType)
		}
	}
	return nil
}

// Activity argument and result types, shared with the activities package.

type FetchInput struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

type FetchResult struct {
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
	FinalURL    string `json:"final_url,omitempty"`
}

type ExtractInput struct {
	Content []byte `json:"content"`
	Type    string `json:"type"`
}

type ExtractResult struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

type CleanInput struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CleanResult struct {
	Text         string            `json:"text"`
	Redacted     string            `json:"redacted,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RulesApplied []string          `json:"rules_applied,omitempty"`
}

type StoreInput struct {
	ID          string            `json:"id,omitempty"`
	URL         string            `json:"url,omitempty"`
	Path        string            `json:"path,omitempty"`
	Type        string            `json:"type"`
	Source      string            `json:"source"`
	Content     []byte            `json:"content,omitempty"`
	Text        string            `json:"text"`
	Redacted    string            `json:"redacted,omitempty"`
	Tokens      []string          `json:"tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
}

type StoreResult struct {
	DocumentID string `json:"document_id"`
	Ref        string `json:"ref"`
}

// Activity names for registration.
const (
	FetchPublicationActivityName    = "FetchPublicationActivity"
	ExtractTextActivityName         = "ExtractTextActivity"
	CleanContentActivityName        = "CleanContentActivity"
	PreprocessTextActivityName      = "PreprocessTextActivity"
	StorePublicationActivityName    = "StorePublicationActivity"
	IndexPublicationActivityName    = "IndexPublicationActivity"
	MergeIngestBranchActivityName   = "MergeIngestBranchActivity"
	CollectNewsActivityName         = "CollectNewsActivity"
	HarvestGazetteActivityName      = "HarvestGazetteActivity"
	SaveHarvestProgressActivityName = "SaveHarvestProgressActivity"
	CheckDuplicateActivityName      = "CheckDuplicateActivity"
)
