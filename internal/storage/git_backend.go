package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/civiclab-mx/observatorio/pkg/document"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// GitBackend archives documents in a real Git repository, one commit
// per write. The history doubles as an audit trail: every gazette and
// article the observatory ever collected can be recovered at the
// version it was collected.
type GitBackend struct {
	repo             *git.Repository
	repoPath         string
	metricsCollector MetricsCollector
}

// NewGitBackend opens the archive repository, initializing it on first
// run.
func NewGitBackend(repoPath string, metrics MetricsCollector) (*GitBackend, error) {
	repo, err := git.PlainOpen(repoPath)
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(repoPath, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &GitBackend{
		repo:             repo,
		repoPath:         repoPath,
		metricsCollector: metrics,
	}, nil
}

func (g *GitBackend) StoreDocument(ctx context.Context, doc *document.Document) (string, error) {
	start := time.Now()
	commitHash, err := g.storeDocumentInGit(doc)

	g.recordMetric("store", start, err == nil, err)
	return commitHash, err
}

func (g *GitBackend) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	start := time.Now()

	doc, err := g.findDocumentByID(id)

	g.recordMetric("get", start, err == nil, err)
	return doc, err
}

func (g *GitBackend) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()

	docPath, err := g.findDocumentPath(id)
	if err != nil {
		g.recordMetric("delete", start, false, err)
		return err
	}

	if err := os.RemoveAll(docPath); err != nil {
		g.recordMetric("delete", start, false, err)
		return fmt.Errorf("failed to remove document directory: %w", err)
	}

	if _, err := g.commitAll(fmt.Sprintf("Remove document %s", id)); err != nil {
		g.recordMetric("delete", start, false, err)
		return err
	}

	g.recordMetric("delete", start, true, nil)
	return nil
}

func (g *GitBackend) ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error) {
	start := time.Now()

	pattern := filepath.Join(g.repoPath, "documents", "*", "*", "*", "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		g.recordMetric("list", start, false, err)
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}

	documents := make([]*document.Document, 0)
	for _, match := range matches {
		id := filepath.Base(match)
		doc, err := g.loadDocumentFromPath(match, id)
		if err != nil || doc == nil {
			continue
		}
		if documentMatchesFilters(doc, filters) {
			documents = append(documents, doc)
		}
	}

	g.recordMetric("list", start, true, nil)
	return documents, nil
}

func (g *GitBackend) Exists(ctx context.Context, id string) (bool, error) {
	_, err := g.findDocumentPath(id)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// MergeBranch acknowledges branch merges for workflow compatibility.
// The archive commits straight to the default branch, so there is
// nothing to merge.
func (g *GitBackend) MergeBranch(ctx context.Context, branchName string) error {
	log.Debug().Str("branch", branchName).Msg("Merge requested on git archive (commits go to the default branch)")
	return nil
}

func (g *GitBackend) Health(ctx context.Context) error {
	start := time.Now()

	_, err := g.repo.Worktree()

	g.recordMetric("health", start, err == nil, err)
	return err
}

func (g *GitBackend) Close() error {
	return nil
}

// findDocumentPath locates the archive directory for a document ID.
func (g *GitBackend) findDocumentPath(id string) (string, error) {
	searchPatterns := []string{
		fmt.Sprintf("documents/*/*/*/%s", id),
		fmt.Sprintf("documents/*/*/%s", id),
	}

	for _, pattern := range searchPatterns {
		matches, err := filepath.Glob(filepath.Join(g.repoPath, pattern))
		if err != nil {
			continue
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && info.IsDir() {
				return match, nil
			}
		}
	}

	return "", fmt.Errorf("document not found: %s", id)
}

func (g *GitBackend) findDocumentByID(id string) (*document.Document, error) {
	docPath, err := g.findDocumentPath(id)
	if err != nil {
		return nil, err
	}

	doc, err := g.loadDocumentFromPath(docPath, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

// loadDocumentFromPath reads the metadata, text, redacted, and raw
// files of an archived document.
func (g *GitBackend) loadDocumentFromPath(docPath, id string) (*document.Document, error) {
	metadataPath := filepath.Join(docPath, "metadata.json")

	metadataBytes, err := os.ReadFile(metadataPath)
	if os.IsNotExist(err) {
		return nil, nil // Not a document directory
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta archiveMetadata
	if err := json.Unmarshal(metadataBytes, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	doc := &document.Document{
		ID: id,
		Source: document.Source{
			Type:   meta.Type,
			Outlet: meta.Outlet,
			URL:    meta.URL,
		},
		PublishedAt: meta.PublishedAt,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}
	doc.Content.Metadata = meta.Metadata

	if doc.Source.Type == "" {
		// Older archive entries derive the type from the path.
		parts := strings.Split(docPath, string(filepath.Separator))
		for i, part := range parts {
			if part == "documents" && i+1 < len(parts) {
				doc.Source.Type = parts[i+1]
				break
			}
		}
	}

	if textBytes, err := os.ReadFile(filepath.Join(docPath, "text.txt")); err == nil {
		doc.Content.Text = string(textBytes)
	}
	if redactedBytes, err := os.ReadFile(filepath.Join(docPath, "redacted.txt")); err == nil {
		doc.Content.Redacted = string(redactedBytes)
	}
	if rawBytes, err := os.ReadFile(filepath.Join(docPath, "raw")); err == nil {
		doc.Content.Raw = rawBytes
	}

	return doc, nil
}

// archiveMetadata is the metadata.json schema of one archived document.
type archiveMetadata struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Outlet      string            `json:"outlet,omitempty"`
	URL         string            `json:"url"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// storeDocumentInGit writes the document files and commits them.
func (g *GitBackend) storeDocumentInGit(doc *document.Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("document validation failed: %w", err)
	}

	docPath := filepath.Join(g.repoPath, doc.GitPath())
	if err := os.MkdirAll(docPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", docPath, err)
	}

	if len(doc.Content.Raw) > 0 {
		if err := os.WriteFile(filepath.Join(docPath, "raw"), doc.Content.Raw, 0644); err != nil {
			return "", fmt.Errorf("failed to write raw content: %w", err)
		}
	}

	if doc.Content.Text != "" {
		if err := os.WriteFile(filepath.Join(docPath, "text.txt"), []byte(doc.Content.Text), 0644); err != nil {
			return "", fmt.Errorf("failed to write text content: %w", err)
		}
	}

	if doc.Content.Redacted != "" {
		if err := os.WriteFile(filepath.Join(docPath, "redacted.txt"), []byte(doc.Content.Redacted), 0644); err != nil {
			return "", fmt.Errorf("failed to write redacted content: %w", err)
		}
	}

	meta := archiveMetadata{
		ID:          doc.ID,
		Type:        doc.Source.Type,
		Outlet:      doc.Source.Outlet,
		URL:         doc.Source.URL,
		PublishedAt: doc.PublishedAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		Metadata:    doc.Content.Metadata,
	}

	metadataBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(docPath, "metadata.json"), metadataBytes, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	return g.commit(doc.GitPath(), fmt.Sprintf("Archive document %s", doc.ID))
}

// commit stages the given path and creates a commit.
func (g *GitBackend) commit(path, message string) (string, error) {
	w, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	if _, err := w.Add(path); err != nil {
		return "", fmt.Errorf("failed to add files: %w", err)
	}

	return g.commitStaged(w, message)
}

// commitAll stages everything, including deletions, and commits.
func (g *GitBackend) commitAll(message string) (string, error) {
	w, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("failed to stage changes: %w", err)
	}

	return g.commitStaged(w, message)
}

func (g *GitBackend) commitStaged(w *git.Worktree, message string) (string, error) {
	commit, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Observatorio Civico",
			Email: "contacto@civiclab.mx",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	return commit.String(), nil
}

func (g *GitBackend) recordMetric(operation string, start time.Time, success bool, err error) {
	if g.metricsCollector != nil {
		g.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       "git",
			Error:         err,
		})
	}
}
