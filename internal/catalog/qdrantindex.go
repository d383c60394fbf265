package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant-backed Index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex implements Index against a Qdrant collection of table
// embeddings, repurposing the decision-search collection pattern for
// schema-table search: payload carries db_id and table name instead of
// org_id/agent_id, and Search runs one query per large db id.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("catalog: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("catalog: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

// NewQdrantIndex connects to a Qdrant server via gRPC.
func NewQdrantIndex(cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection, dims: cfg.Dims, logger: logger}, nil
}

// EnsureCollection creates the table-embedding collection if absent and
// backfills the db_id keyword index, idempotently.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("catalog: check collection exists: %w", err)
	}
	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("catalog: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("catalog: created qdrant collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"db_id", "table"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("catalog: ensure index on %q: %w", field, err)
		}
	}
	return nil
}

// Upsert stores each entry's precomputed vector as a point whose id is a
// hash of "<db_id>.<table>", with db_id and table as payload, so repeated
// Upsert calls are idempotent replacements.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []TableEmbedding) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(e.DBID, e.Table)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"db_id": e.DBID,
				"table": e.Table,
			}),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("catalog: qdrant upsert: %w", err)
	}
	return nil
}

// Search runs one filtered query per db id in dbIDs and merges the results,
// since Qdrant's Must filter can't express "db_id in this set, ranked
// globally" without losing per-db fairness for a small dbIDs slice.
func (q *QdrantIndex) Search(ctx context.Context, dbIDs []string, queryVector []float32, topK int) ([]TableRef, error) {
	if topK <= 0 {
		topK = 10
	}
	var out []TableRef
	limit := uint64(topK)
	for _, dbID := range dbIDs {
		scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQueryDense(queryVector),
			Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("db_id", dbID)}},
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("catalog: qdrant search db %q: %w", dbID, err)
		}
		for _, sp := range scored {
			table := sp.Payload["table"].GetStringValue()
			if table == "" {
				continue
			}
			out = append(out, TableRef{DBID: dbID, Table: table})
		}
	}
	return out, nil
}

// pointID hashes db_id+table into a stable uint64 point id.
func pointID(dbID, table string) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range []byte(dbID + "." + table) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}
