package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pairchat/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 10 * time.Second

// MongoStore keeps documents in MongoDB and drives subscriptions through an
// in-process notifier: every committed write re-runs the affected
// subscriptions against the database. Fan-out therefore covers writes made
// through this process; cross-process change streams would need a replica
// set and are out of scope here.
//
// Path mapping: "users/{id}" lands in collection "users" with _id = id;
// "chats/{pair}/messages/{id}" lands in "chats_messages" with a parent
// field carrying the pair key.
type MongoStore struct {
	db       *mongo.Database
	notifier *notifier
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:       db,
		notifier: newNotifier(),
	}
}

// docRef resolves a document path to its collection and filter.
func (s *MongoStore) docRef(path string) (*mongo.Collection, bson.M, error) {
	segs := strings.Split(path, "/")
	switch len(segs) {
	case 2:
		return s.db.Collection(segs[0]), bson.M{"_id": segs[1]}, nil
	case 4:
		coll := segs[0] + "_" + segs[2]
		return s.db.Collection(coll), bson.M{"_id": segs[3], "parent": segs[1]}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported document path: %s", path)
	}
}

// collRef resolves a collection path to its collection and member filter.
func (s *MongoStore) collRef(collectionPath string) (*mongo.Collection, bson.M, error) {
	segs := strings.Split(collectionPath, "/")
	switch len(segs) {
	case 1:
		return s.db.Collection(segs[0]), bson.M{}, nil
	case 3:
		coll := segs[0] + "_" + segs[2]
		return s.db.Collection(coll), bson.M{"parent": segs[1]}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported collection path: %s", collectionPath)
	}
}

func (s *MongoStore) GetDocument(ctx context.Context, path string) (*Document, error) {
	coll, filter, err := s.docRef(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var raw bson.M
	if err := coll.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	return documentFromBSON(path, raw), nil
}

func (s *MongoStore) SetDocument(ctx context.Context, path string, fields map[string]interface{}, merge bool) error {
	coll, filter, err := s.docRef(path)
	if err != nil {
		return err
	}
	resolved := resolveTimestamps(fields, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if merge {
		_, err = coll.UpdateOne(ctx, filter,
			bson.M{"$set": bson.M(resolved)},
			options.Update().SetUpsert(true))
	} else {
		doc := bson.M(resolved)
		for k, v := range filter {
			doc[k] = v
		}
		_, err = coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MongoStore) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	coll, filter, err := s.docRef(path)
	if err != nil {
		return err
	}
	resolved := resolveTimestamps(fields, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M(resolved)})
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", path, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MongoStore) AddDocument(ctx context.Context, collectionPath string, fields map[string]interface{}) (string, error) {
	coll, member, err := s.collRef(collectionPath)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	resolved := resolveTimestamps(fields, time.Now().UTC())
	doc := bson.M(resolved)
	doc["_id"] = id
	for k, v := range member {
		doc[k] = v
	}

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to add document to %s: %w", collectionPath, err)
	}

	s.notifier.publish(collectionPath+"/"+id, collectionPath)
	return id, nil
}

func (s *MongoStore) Increment(ctx context.Context, path string, field string, delta int64) error {
	coll, filter, err := s.docRef(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	result, err := coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("failed to increment %s on %s: %w", field, path, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	s.notifier.publish(path, parentCollection(path))
	return nil
}

func (s *MongoStore) SubscribeToQuery(collectionPath, orderBy string, fn SnapshotFunc) UnsubscribeFunc {
	return s.notifier.subscribe(collectionPath, func() {
		docs, err := s.runQuery(collectionPath, orderBy)
		if err != nil {
			logger.LogError(err, "Failed to deliver query snapshot", map[string]interface{}{
				"collection": collectionPath,
			})
			return
		}
		fn(docs)
	})
}

func (s *MongoStore) SubscribeToDocument(path string, fn DocumentFunc) UnsubscribeFunc {
	return s.notifier.subscribe(path, func() {
		doc, err := s.GetDocument(context.Background(), path)
		if err != nil {
			if err != ErrNotFound {
				logger.LogError(err, "Failed to deliver document snapshot", map[string]interface{}{
					"path": path,
				})
				return
			}
			fn(nil)
			return
		}
		fn(doc)
	})
}

func (s *MongoStore) runQuery(collectionPath, orderBy string) ([]Document, error) {
	coll, filter, err := s.collRef(collectionPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	opts := options.Find()
	if orderBy != "" {
		opts.SetSort(bson.D{{Key: orderBy, Value: 1}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "$natural", Value: 1}})
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collectionPath, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collectionPath, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		id, _ := raw["_id"].(string)
		docs = append(docs, *documentFromBSON(collectionPath+"/"+id, raw))
	}
	return docs, nil
}

// documentFromBSON converts a decoded mongo map into a Document, folding
// driver types back to plain Go values and dropping bookkeeping fields.
func documentFromBSON(path string, raw bson.M) *Document {
	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "_id" || k == "parent" {
			continue
		}
		fields[k] = normalizeBSON(v)
	}
	return &Document{
		ID:     path[strings.LastIndex(path, "/")+1:],
		Path:   path,
		Fields: fields,
	}
}

func normalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	default:
		return v
	}
}
