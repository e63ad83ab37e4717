package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civiclab-mx/observatorio/pkg/document"
	"github.com/rs/zerolog/log"
)

// mongoBatchSize is how many documents a single bulk write carries.
const mongoBatchSize = 2000

// MongoBackend mirrors documents into a MongoDB collection so they can
// be queried without touching the file tree. Writes are upserts keyed
// on the document ID, which makes re-harvesting the same URL a no-op
// update instead of a duplicate.
type MongoBackend struct {
	client           *mongo.Client
	collection       *mongo.Collection
	metricsCollector MetricsCollector
}

// mongoDocument is the collection schema. It flattens the partition
// date into year/month/day fields so the common filters become plain
// equality matches.
type mongoDocument struct {
	ID          string            `bson:"_id"`
	Type        string            `bson:"type"`
	Outlet      string            `bson:"outlet,omitempty"`
	URL         string            `bson:"url,omitempty"`
	Path        string            `bson:"path,omitempty"`
	Text        string            `bson:"text"`
	Redacted    string            `bson:"redacted"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	Tokens      []string          `bson:"tokens,omitempty"`
	PublishedAt time.Time         `bson:"published_at,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
	Year        int               `bson:"year"`
	Month       int               `bson:"month"`
	Day         int               `bson:"day"`
}

// NewMongoBackend connects to the given MongoDB deployment and targets
// database/collection for the mirror.
func NewMongoBackend(ctx context.Context, uri, database, collection string, metrics MetricsCollector) (*MongoBackend, error) {
	if database == "" {
		database = "observatorio"
	}
	if collection == "" {
		collection = "documents"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	log.Info().
		Str("database", database).
		Str("collection", collection).
		Msg("Mongo mirror connected")

	return &MongoBackend{
		client:           client,
		collection:       client.Database(database).Collection(collection),
		metricsCollector: metrics,
	}, nil
}

func (m *MongoBackend) StoreDocument(ctx context.Context, doc *document.Document) (string, error) {
	start := time.Now()

	record := toMongoDocument(doc)
	_, err := m.collection.ReplaceOne(
		ctx,
		bson.M{"_id": record.ID},
		record,
		options.Replace().SetUpsert(true),
	)

	m.recordMetric("store", start, err == nil, err)
	if err != nil {
		return "", fmt.Errorf("failed to upsert document: %w", err)
	}
	return record.ID, nil
}

// StoreDocuments writes the documents in batches. It returns how many
// documents were written before the first failing batch.
func (m *MongoBackend) StoreDocuments(ctx context.Context, docs []*document.Document) (int, error) {
	start := time.Now()

	stored := 0
	for batchStart := 0; batchStart < len(docs); batchStart += mongoBatchSize {
		batchEnd := batchStart + mongoBatchSize
		if batchEnd > len(docs) {
			batchEnd = len(docs)
		}
		batch := docs[batchStart:batchEnd]

		models := make([]mongo.WriteModel, 0, len(batch))
		for _, doc := range batch {
			record := toMongoDocument(doc)
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": record.ID}).
				SetReplacement(record).
				SetUpsert(true))
		}

		if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			m.recordMetric("store_batch", start, false, err)
			return stored, fmt.Errorf("bulk write failed after %d documents: %w", stored, err)
		}
		stored += len(batch)
	}

	m.recordMetric("store_batch", start, true, nil)
	return stored, nil
}

func (m *MongoBackend) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	start := time.Now()

	var record mongoDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		err = fmt.Errorf("document not found: %s", id)
	}

	m.recordMetric("get", start, err == nil, err)
	if err != nil {
		return nil, err
	}
	return fromMongoDocument(&record), nil
}

func (m *MongoBackend) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()

	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	m.recordMetric("delete", start, err == nil, err)
	return err
}

// ListDocuments queries the mirror with the shared filter keys:
// type, outlet, year, month, limit.
func (m *MongoBackend) ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error) {
	start := time.Now()

	query := bson.M{}
	if docType, ok := filters["type"]; ok {
		query["type"] = docType
	}
	if outlet, ok := filters["outlet"]; ok {
		query["outlet"] = outlet
	}
	if year, ok := filters["year"]; ok {
		if y, err := strconv.Atoi(year); err == nil {
			query["year"] = y
		}
	}
	if month, ok := filters["month"]; ok {
		if mo, err := strconv.Atoi(month); err == nil {
			query["month"] = mo
		}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "published_at", Value: -1}})
	if raw, ok := filters["limit"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			findOpts.SetLimit(int64(n))
		}
	}

	cursor, err := m.collection.Find(ctx, query, findOpts)
	if err != nil {
		m.recordMetric("list", start, false, err)
		return nil, fmt.Errorf("mongo query failed: %w", err)
	}
	defer cursor.Close(ctx)

	documents := make([]*document.Document, 0)
	for cursor.Next(ctx) {
		var record mongoDocument
		if err := cursor.Decode(&record); err != nil {
			m.recordMetric("list", start, false, err)
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		documents = append(documents, fromMongoDocument(&record))
	}
	if err := cursor.Err(); err != nil {
		m.recordMetric("list", start, false, err)
		return nil, err
	}

	m.recordMetric("list", start, true, nil)
	return documents, nil
}

func (m *MongoBackend) Exists(ctx context.Context, id string) (bool, error) {
	count, err := m.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MergeBranch is a no-op: the mirror has no branches.
func (m *MongoBackend) MergeBranch(ctx context.Context, branchName string) error {
	log.Debug().Str("branch", branchName).Msg("Merge requested on mongo mirror (no-op)")
	return nil
}

func (m *MongoBackend) Health(ctx context.Context) error {
	start := time.Now()
	err := m.client.Ping(ctx, nil)
	m.recordMetric("health", start, err == nil, err)
	return err
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func toMongoDocument(doc *document.Document) *mongoDocument {
	date := doc.PartitionDate()
	return &mongoDocument{
		ID:          doc.ID,
		Type:        doc.Source.Type,
		Outlet:      doc.Source.Outlet,
		URL:         doc.Source.URL,
		Path:        doc.Source.Path,
		Text:        doc.Content.Text,
		Redacted:    doc.Content.Redacted,
		Metadata:    doc.Content.Metadata,
		Tokens:      doc.Content.Tokens,
		PublishedAt: doc.PublishedAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		Year:        date.Year(),
		Month:       int(date.Month()),
		Day:         date.Day(),
	}
}

func fromMongoDocument(record *mongoDocument) *document.Document {
	return &document.Document{
		ID: record.ID,
		Source: document.Source{
			Type:   record.Type,
			Outlet: record.Outlet,
			URL:    record.URL,
			Path:   record.Path,
		},
		Content: document.Content{
			Text:     record.Text,
			Redacted: record.Redacted,
			Metadata: record.Metadata,
			Tokens:   record.Tokens,
		},
		PublishedAt: record.PublishedAt,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func (m *MongoBackend) recordMetric(operation string, start time.Time, success bool, err error) {
	if m.metricsCollector != nil {
		m.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       "mongo",
			Error:         err,
		})
	}
}
