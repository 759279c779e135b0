package imports

import (
	"context"
	"time"

	"go-dataport/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ImportRepository interface {
	Create(ctx context.Context, job *ImportJob) error
	Get(ctx context.Context, id string) (*ImportJob, error)
	Update(ctx context.Context, id string, job *ImportJob) error
	FindByUserID(ctx context.Context, userID string, limit int64) ([]ImportJob, error)
	UpdateStatus(ctx context.Context, id string, status ImportStatus) error
}

type ImportRepositoryImpl struct {
	collection *mongo.Collection
}

func NewImportRepository(db *database.MongodbDB) ImportRepository {
	return &ImportRepositoryImpl{
		collection: db.DB.Collection("import_jobs"),
	}
}

func (r *ImportRepositoryImpl) Create(ctx context.Context, job *ImportJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	job.Status = ImportStatusPending

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *ImportRepositoryImpl) Get(ctx context.Context, id string) (*ImportJob, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var job ImportJob
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&job); err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *ImportRepositoryImpl) Update(ctx context.Context, id string, job *ImportJob) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	job.UpdatedAt = time.Now()
	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": objID}, job)
	return err
}

func (r *ImportRepositoryImpl) FindByUserID(ctx context.Context, userID string, limit int64) ([]ImportJob, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []ImportJob
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *ImportRepositoryImpl) UpdateStatus(ctx context.Context, id string, status ImportStatus) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if status.Terminal() {
		now := time.Now()
		set["completed_at"] = &now
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	return err
}
