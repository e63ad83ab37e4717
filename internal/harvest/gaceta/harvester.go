package gaceta

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
)

// sourceKey is the rate-limit bucket all gazette traffic shares.
const sourceKey = "gaceta"

// Harvester walks the senate gazette listings for a date range, builds
// full publication records, and stores them as documents.
type Harvester struct {
	fetcher   *harvest.Fetcher
	store     storage.StorageBackend
	extractor *extractor.Engine
	capture   *harvest.ErrorCapture
	config    *Config
}

// Stats summarizes one harvest run.
type Stats struct {
	PagesProcessed      int `json:"pages_processed"`
	PublicationsSeen    int `json:"publications_seen"`
	PublicationsStored  int `json:"publications_stored"`
	PublicationsSkipped int `json:"publications_skipped"`
	Failures            int `json:"failures"`
}

// NewHarvester builds a gazette harvester. capture may be nil when no
// diagnostic dumps are wanted.
func NewHarvester(fetcher *harvest.Fetcher, store storage.StorageBackend, engine *extractor.Engine, capture *harvest.ErrorCapture, config *Config) *Harvester {
	if config == nil {
		config = DefaultConfig()
	}
	return &Harvester{
		fetcher:   fetcher,
		store:     store,
		extractor: engine,
		capture:   capture,
		config:    config,
	}
}

// Harvest collects publications with session dates in [from, to]. Each
// legislature window overlapping the range is walked for every
// configured publication type. Errors in one listing do not stop the
// others.
func (h *Harvester) Harvest(ctx context.Context, from, to time.Time) (*Stats, error) {
	stats := &Stats{}

	for _, window := range h.config.Legislatures {
		if from.After(window.End) || to.Before(window.Start) {
			continue
		}
		legisFrom := maxTime(from, window.Start)
		legisTo := minTime(to, window.End)

		for _, listingType := range h.config.Types {
			log.Info().
				Int("legislature", window.Number).
				Str("type", listingType).
				Time("from", legisFrom).
				Time("to", legisTo).
				Msg("Harvesting gazette listing")

			if err := h.harvestListing(ctx, window.Number, listingType, legisFrom, legisTo, stats); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				log.Error().
					Err(err).
					Int("legislature", window.Number).
					Str("type", listingType).
					Msg("Gazette listing failed")
				stats.Failures++
			}
		}
	}
	return stats, nil
}

// harvestListing walks every page of one legislature/type listing,
// collects in-window rows not yet stored, then builds and stores them.
func (h *Harvester) harvestListing(ctx context.Context, legislature int, listingType string, from, to time.Time, stats *Stats) error {
	res, err := h.fetcher.Fetch(ctx, sourceKey, h.config.ListingURL(legislature, listingType, 1))
	if err != nil {
		return fmt.Errorf("failed to load listing: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return fmt.Errorf("failed to parse listing: %w", err)
	}

	total, err := totalPages(doc, h.config)
	if err != nil {
		h.captureHTML(listingType, fmt.Sprintf("listado_%d", legislature), res.Body)
		return err
	}
	log.Info().Int("total_pages", total).Str("type", listingType).Msg("Listing paginated")

	var pending []*Publication
	for page := 1; page <= total; page++ {
		if page > 1 {
			res, err = h.fetcher.Fetch(ctx, sourceKey, h.config.ListingURL(legislature, listingType, page))
			if err != nil {
				return fmt.Errorf("failed to load listing page %d: %w", page, err)
			}
			doc, err = goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
			if err != nil {
				return fmt.Errorf("failed to parse listing page %d: %w", page, err)
			}
		}
		log.Info().Int("page", page).Int("total_pages", total).Msg("Processing listing page")

		kept, err := h.collectRows(ctx, doc, legislature, listingType, from, to, stats)
		if err != nil {
			return err
		}
		pending = append(pending, kept...)
		stats.PagesProcessed++
	}

	log.Info().Int("count", len(pending)).Str("type", listingType).Msg("Building publications")
	h.buildAndStore(ctx, pending, stats)
	return nil
}

// collectRows parses one listing page and keeps rows inside the date
// window that are not already stored. Unparseable rows are captured and
// skipped.
func (h *Harvester) collectRows(ctx context.Context, doc *goquery.Document, legislature int, listingType string, from, to time.Time, stats *Stats) ([]*Publication, error) {
	var kept []*Publication
	var rowErr error

	doc.Find(h.config.RowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		if ctx.Err() != nil {
			rowErr = ctx.Err()
			return false
		}

		pub, err := parseRow(row, h.config, legislature, listingType)
		if err != nil {
			log.Warn().Err(err).Int("row", i).Str("type", listingType).Msg("Skipping unparseable listing row")
			if raw, htmlErr := goquery.OuterHtml(row); htmlErr == nil {
				h.captureHTML(listingType, fmt.Sprintf("fila_%d", i), []byte(raw))
			}
			stats.Failures++
			return true
		}

		if pub.SessionDate.Before(from) || pub.SessionDate.After(to) {
			return true
		}
		stats.PublicationsSeen++

		exists, err := h.store.Exists(ctx, pub.ID)
		if err != nil {
			log.Warn().Err(err).Str("id", pub.ID).Msg("Duplicate check failed, keeping row")
		} else if exists {
			log.Info().Str("id", pub.ID).Msg("Publication already processed")
			stats.PublicationsSkipped++
			return true
		}

		kept = append(kept, pub)
		return true
	})
	return kept, rowErr
}

// buildAndStore completes each pending publication and stores it.
// Failures capture the raw listing row for diagnosis and move on.
func (h *Harvester) buildAndStore(ctx context.Context, pending []*Publication, stats *Stats) {
	for i, pub := range pending {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && i%20 == 0 {
			log.Info().Int("done", i).Int("total", len(pending)).Str("type", pub.Type).Msg("Publication progress")
		}

		if err := h.buildPublication(ctx, pub); err != nil {
			log.Error().Err(err).Str("url", pub.URL).Msg("Couldn't process publication")
			h.captureHTML(pub.Type, urlTail(pub.URL), []byte(pub.rawRow))
			stats.Failures++
			continue
		}

		if _, err := h.store.StoreDocument(ctx, pub.ToDocument()); err != nil {
			log.Error().Err(err).Str("id", pub.ID).Msg("Failed to store publication")
			stats.Failures++
			continue
		}
		stats.PublicationsStored++
	}
}

// buildPublication fills in the full text: reduced rows reuse their
// summary, full records load their detail page and, when an attachment
// exists, extract its text.
func (h *Harvester) buildPublication(ctx context.Context, pub *Publication) error {
	if !pub.fullRecord {
		pub.FullText = pub.Summary
		return nil
	}

	res, err := h.fetcher.Fetch(ctx, sourceKey, pub.URL)
	if err != nil {
		return fmt.Errorf("failed to load publication page: %w", err)
	}
	pub.URL = res.FinalURL

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return fmt.Errorf("failed to parse publication page: %w", err)
	}

	content, err := parsePublicationPage(doc, h.config)
	if err != nil {
		return err
	}
	if !content.found {
		log.Warn().Str("url", pub.URL).Msg("No recognizable layout on publication page, keeping summary")
		pub.FullText = pub.Summary
		return nil
	}

	if content.documentURL != "" {
		pub.DocumentURL = resolveURL(pub.URL, content.documentURL)
		return h.attachFullText(ctx, pub)
	}
	if content.text != "" {
		pub.FullText = content.text
		return nil
	}
	pub.FullText = pub.Summary
	return nil
}

// attachFullText downloads the publication's attachment and extracts
// its text. An unreachable attachment falls back to the summary; a
// corrupt one fails the publication.
func (h *Harvester) attachFullText(ctx context.Context, pub *Publication) error {
	res, err := h.fetcher.Fetch(ctx, sourceKey, pub.DocumentURL)
	if err != nil || res.StatusCode != 200 {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		log.Warn().
			Err(err).
			Str("url", pub.DocumentURL).
			Int("status", status).
			Msg("Couldn't download attachment, keeping summary")
		pub.FullText = pub.Summary
		return nil
	}

	text, _, err := h.extractor.Extract(ctx, res.Body, attachmentType(res))
	if err != nil {
		return fmt.Errorf("attachment extraction failed: %w", err)
	}
	pub.FullText = text
	return nil
}

// attachmentType sniffs the attachment format; the site labels PDFs
// inconsistently.
func attachmentType(res *harvest.FetchResult) string {
	if len(res.Body) >= 4 && string(res.Body[:4]) == "%PDF" {
		return "pdf"
	}
	if res.ContentType != "" {
		return res.ContentType
	}
	return "pdf"
}

func (h *Harvester) captureHTML(kind, id string, raw []byte) {
	if h.capture == nil || len(raw) == 0 {
		return
	}
	h.capture.SaveHTML(kind, id, raw)
}

func urlTail(rawURL string) string {
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	return parts[len(parts)-1]
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
