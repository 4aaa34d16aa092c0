// Package document implements connect.Writer for the multi-model
// document destination (MongoDB standing in for SurrealDB, per
// SPEC_FULL.md §3.4), adapted from the teacher's
// pkg/streams/mongodb_stream.go connection idiom and
// pkg/auth/mongo_client.go's connection-string auth path, generalized
// from change-stream *consumption* to batch *writing*.
package document

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cohenjo/connectors/pkg/connect"
)

// Config configures the shared MongoDB client every mapping's handle
// is drawn from. Credentials belong in URI's userinfo. The URI comes
// from the destination config's mongo_uri, which the MONGO_URI
// environment variable overrides.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Driver implements connect.Writer for document destinations. Unlike
// the table driver, there is one shared *mongo.Client for the whole
// process — the destination_ref here names a collection, not a
// connection, so "opening" a handle is just confirming the collection
// is reachable.
type Driver struct {
	cfg    Config
	client *mongo.Client

	mu     sync.Mutex
	opened map[string]bool
}

func NewDriver(ctx context.Context, cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Driver{cfg: cfg, client: client, opened: make(map[string]bool)}, nil
}

// collectionFor parses "database.collection" out of destination_ref,
// falling back to the driver's configured default database when the
// ref names only a collection.
func (d *Driver) collectionFor(ref string) *mongo.Collection {
	db := d.cfg.Database
	coll := ref
	if idx := strings.Index(ref, "."); idx >= 0 {
		db = ref[:idx]
		coll = ref[idx+1:]
	}
	return d.client.Database(db).Collection(coll)
}

func (d *Driver) Open(ctx context.Context, mapping *connect.Mapping) error {
	d.mu.Lock()
	if d.opened[mapping.DestinationRef] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	coll := d.collectionFor(mapping.DestinationRef)
	// A zero-filter count confirms the collection/database names
	// resolve and the connection is live; MongoDB creates the
	// collection lazily on first write, so there's no separate
	// create-with-schema step the way the table destination needs one.
	if _, err := coll.EstimatedDocumentCount(ctx); err != nil {
		return connect.NewFatalError(mapping.Name, "reach mongo collection", err)
	}

	d.mu.Lock()
	d.opened[mapping.DestinationRef] = true
	d.mu.Unlock()
	return nil
}

// pointID resolves a stable document _id: the record's own "id" field
// as-is when present, else the unhashed string "topic:offset", so
// at-least-once redelivery upserts rather than duplicates.
func pointID(fields map[string]interface{}, rec connect.Record) interface{} {
	if id, ok := fields["id"]; ok {
		return id
	}
	return fmt.Sprintf("%s:%d", rec.Topic, rec.Offset)
}

// WriteBatch performs one unordered bulk-write of upsert-by-_id
// replacements, the teacher's batch-write idiom translated from change
// events to destination records: one Mongo round trip per flush. The
// write is not transactional: when it fails, some upserts (and, under
// overwrite, the preceding delete) may already have been applied; the
// error is returned as retryable and the whole batch is written again.
//
// When the mapping's write_policy is overwrite, the collection's
// current contents are cleared first so each flush replaces rather
// than accumulates, the same per-flush replace semantics the table
// driver's manifest.replaceFile implements.
func (d *Driver) WriteBatch(ctx context.Context, mapping *connect.Mapping, batch []connect.Destination) error {
	if len(batch) == 0 {
		return nil
	}
	coll := d.collectionFor(mapping.DestinationRef)

	if mapping.EffectiveWritePolicy() == connect.WriteOverwrite {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return connect.NewRetryableError(mapping.Name, "mongo overwrite delete failed", err)
		}
	}

	models := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		id := pointID(rec.Fields, rec.SourceRec)
		doc := bson.M{}
		for k, v := range rec.Fields {
			doc[k] = v
		}
		doc["_id"] = id
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := coll.BulkWrite(ctx, models, opts)
	if err != nil {
		if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
			return connect.NewRetryableError(mapping.Name, "mongo bulk write timeout/network error", err)
		}
		return connect.NewRetryableError(mapping.Name, "mongo bulk write failed", err)
	}
	return nil
}

// PostCommitRefresh is a no-op: MongoDB collections carry no
// client-cached version the way a Delta-style table manifest does.
func (d *Driver) PostCommitRefresh(ctx context.Context, mapping *connect.Mapping) error {
	return nil
}

func (d *Driver) Close(ctx context.Context, destinationRef string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.opened, destinationRef)
	return nil
}

// Disconnect closes the shared client entirely, called once at process
// shutdown rather than per-mapping.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

var _ connect.Writer = (*Driver)(nil)
