package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/replication"
)

const collName = "mirror"

// snapshotDoc is one mirrored collection stored as its JSON text.
type snapshotDoc struct {
	Path    string `bson:"_id"`
	Payload string `bson:"payload"`
}

// Dialer opens mirror connections to a MongoDB deployment. The credentials'
// databaseURL is the connection URI and projectId names the database.
type Dialer struct{}

// NewDialer creates a MongoDB mirror dialer.
func NewDialer() *Dialer { return &Dialer{} }

// Schemes implements replication.Dialer.
func (Dialer) Schemes() []string { return []string{"mongodb://", "mongodb+srv://"} }

// Dial implements replication.Dialer.
func (Dialer) Dial(ctx context.Context, creds models.CloudCredentials) (replication.Mirror, error) {
	return NewMongoDBRepository(ctx, creds.DatabaseURL, creds.ProjectID)
}

// MongoDBRepository keeps collection snapshots in a single MongoDB collection.
type MongoDBRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ replication.Mirror = (*MongoDBRepository)(nil)

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
	}, nil
}

// Fetch returns the snapshot stored at path, or "null" when there is none.
// The root path returns every snapshot keyed by path.
func (r *MongoDBRepository) Fetch(ctx context.Context, path string) ([]byte, error) {
	if path == replication.RootPath {
		return r.fetchAll(ctx)
	}
	var doc snapshotDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []byte("null"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return []byte(doc.Payload), nil
}

func (r *MongoDBRepository) fetchAll(ctx context.Context) ([]byte, error) {
	cur, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var docs []snapshotDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	if len(docs) == 0 {
		return []byte("null"), nil
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("%q:%s", d.Path, d.Payload))
	}
	return []byte("{" + strings.Join(parts, ",") + "}"), nil
}

// Put upserts the snapshot at path. A "null" payload deletes it, and at the
// root path deletes everything.
func (r *MongoDBRepository) Put(ctx context.Context, path string, payload []byte) error {
	isNull := strings.TrimSpace(string(payload)) == "null"
	switch {
	case path == replication.RootPath && isNull:
		if _, err := r.coll.DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("failed to wipe snapshots: %w", err)
		}
		return nil
	case path == replication.RootPath:
		return errors.New("mongodb mirror only accepts null at the root")
	case isNull:
		if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", path, err)
		}
		return nil
	}

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": path},
		snapshotDoc{Path: path, Payload: string(payload)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", path, err)
	}
	return nil
}

// Watch follows a change stream on the snapshot at path. Change streams need
// a replica set or sharded cluster.
func (r *MongoDBRepository) Watch(ctx context.Context, path string, onChange func([]byte)) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": path}}},
	}
	stream, err := r.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer func() { _ = stream.Close(context.Background()) }()

	for stream.Next(ctx) {
		var change struct {
			OperationType string       `bson:"operationType"`
			FullDocument  *snapshotDoc `bson:"fullDocument"`
		}
		if err := stream.Decode(&change); err != nil {
			return fmt.Errorf("failed to decode change: %w", err)
		}
		if change.OperationType == "delete" || change.FullDocument == nil {
			onChange([]byte("null"))
			continue
		}
		onChange([]byte(change.FullDocument.Payload))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("change stream failed: %w", err)
	}
	return errors.New("change stream closed")
}

// Ping checks the server is reachable.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
