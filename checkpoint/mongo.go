package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hupe1980/reportgraph/core"
)

const defaultMongoCollection = "checkpoints"

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	upsert(ctx context.Context, filter bson.M, doc any) error
	findOne(ctx context.Context, filter bson.M, out any) error
	deleteOne(ctx context.Context, filter bson.M) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) upsert(ctx context.Context, filter bson.M, doc any) error {
	_, err := c.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (c mongoCollection) findOne(ctx context.Context, filter bson.M, out any) error {
	return c.coll.FindOne(ctx, filter).Decode(out)
}

func (c mongoCollection) deleteOne(ctx context.Context, filter bson.M) error {
	_, err := c.coll.DeleteOne(ctx, filter)
	return err
}

type checkpointDocument struct {
	SessionID string    `bson:"_id"`
	State     string    `bson:"state"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoOptions configures a Mongo store.
type MongoOptions struct {
	Collection string
	Now        func() time.Time
}

// Mongo stores one document per session with the encoded state.
type Mongo struct {
	coll collection
	now  func() time.Time
}

var _ core.CheckpointStore = (*Mongo)(nil)

// NewMongo creates a store in the given database.
func NewMongo(db *mongo.Database, optFns ...func(o *MongoOptions)) *Mongo {
	opts := MongoOptions{Collection: defaultMongoCollection, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return newMongo(mongoCollection{coll: db.Collection(opts.Collection)}, opts.Now)
}

func newMongo(coll collection, now func() time.Time) *Mongo {
	if now == nil {
		now = time.Now
	}

	return &Mongo{coll: coll, now: now}
}

// ConnectMongo opens a client for uri. Callers disconnect it when done.
func ConnectMongo(uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: mongo connect: %w", err)
	}

	return client, nil
}

// Save upserts the state of a session.
func (m *Mongo) Save(ctx context.Context, sessionID string, state *core.ExecutionState) error {
	if sessionID == "" {
		return errEmptySessionID
	}

	raw, err := encode(state)
	if err != nil {
		return err
	}

	doc := checkpointDocument{SessionID: sessionID, State: string(raw), UpdatedAt: m.now().UTC()}
	if err := m.coll.upsert(ctx, bson.M{"_id": sessionID}, doc); err != nil {
		return fmt.Errorf("checkpoint: mongo save: %w", err)
	}

	return nil
}

// Load returns the last saved state of a session.
func (m *Mongo) Load(ctx context.Context, sessionID string) (*core.ExecutionState, error) {
	var doc checkpointDocument
	if err := m.coll.findOne(ctx, bson.M{"_id": sessionID}, &doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, core.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("checkpoint: mongo load: %w", err)
	}

	return decode([]byte(doc.State))
}

// Delete removes the checkpoint of a session.
func (m *Mongo) Delete(ctx context.Context, sessionID string) error {
	if err := m.coll.deleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("checkpoint: mongo delete: %w", err)
	}

	return nil
}
