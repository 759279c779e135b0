package record

import (
	"context"
	"time"

	"go-dataport/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordRepository stores records per category, one collection each.
type RecordRepository interface {
	Insert(ctx context.Context, category string, data map[string]interface{}) (string, error)
	Update(ctx context.Context, category, id string, data map[string]interface{}) error
	Get(ctx context.Context, category, id string) (map[string]interface{}, error)
	FindAll(ctx context.Context, category string) ([]map[string]interface{}, error)
	Count(ctx context.Context, category string) (int64, error)
	FindByAnyField(ctx context.Context, category string, fields map[string]interface{}) ([]map[string]interface{}, error)
}

type RecordRepositoryImpl struct {
	db *database.MongodbDB
}

func NewRecordRepository(db *database.MongodbDB) RecordRepository {
	return &RecordRepositoryImpl{db: db}
}

func (r *RecordRepositoryImpl) collection(category string) *mongo.Collection {
	return r.db.DB.Collection("records_" + category)
}

func (r *RecordRepositoryImpl) Insert(ctx context.Context, category string, data map[string]interface{}) (string, error) {
	doc := bson.M{}
	for k, v := range data {
		doc[k] = v
	}
	doc["created_at"] = time.Now()
	doc["updated_at"] = time.Now()

	res, err := r.collection(category).InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return "", nil
}

func (r *RecordRepositoryImpl) Update(ctx context.Context, category, id string, data map[string]interface{}) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range data {
		set[k] = v
	}

	_, err = r.collection(category).UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	return err
}

func (r *RecordRepositoryImpl) Get(ctx context.Context, category, id string) (map[string]interface{}, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := r.collection(category).FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *RecordRepositoryImpl) FindAll(ctx context.Context, category string) ([]map[string]interface{}, error) {
	cursor, err := r.collection(category).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []map[string]interface{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *RecordRepositoryImpl) Count(ctx context.Context, category string) (int64, error) {
	return r.collection(category).CountDocuments(ctx, bson.M{})
}

// FindByAnyField returns candidate records sharing at least one of the given
// field values, used as the pool for duplicate scoring.
func (r *RecordRepositoryImpl) FindByAnyField(ctx context.Context, category string, fields map[string]interface{}) ([]map[string]interface{}, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	var or []bson.M
	for k, v := range fields {
		or = append(or, bson.M{k: v})
	}

	cursor, err := r.collection(category).Find(ctx, bson.M{"$or": or}, options.Find().SetLimit(25))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []map[string]interface{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
