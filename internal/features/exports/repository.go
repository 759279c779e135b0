package exports

import (
	"context"
	"time"

	"go-dataport/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ExportRepository interface {
	Create(ctx context.Context, job *ExportJob) error
	Get(ctx context.Context, id string) (*ExportJob, error)
	GetByToken(ctx context.Context, token string) (*ExportJob, error)
	Update(ctx context.Context, id string, job *ExportJob) error
	FindByUserID(ctx context.Context, userID string, limit int64) ([]ExportJob, error)
	FindExpired(ctx context.Context, now time.Time) ([]ExportJob, error)
}

type ExportRepositoryImpl struct {
	collection *mongo.Collection
}

func NewExportRepository(db *database.MongodbDB) ExportRepository {
	return &ExportRepositoryImpl{
		collection: db.DB.Collection("export_jobs"),
	}
}

func (r *ExportRepositoryImpl) Create(ctx context.Context, job *ExportJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	job.Status = ExportStatusPending

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *ExportRepositoryImpl) Get(ctx context.Context, id string) (*ExportJob, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var job ExportJob
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *ExportRepositoryImpl) GetByToken(ctx context.Context, token string) (*ExportJob, error) {
	var job ExportJob
	if err := r.collection.FindOne(ctx, bson.M{"download_token": token}).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *ExportRepositoryImpl) Update(ctx context.Context, id string, job *ExportJob) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	job.UpdatedAt = time.Now()
	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": objID}, job)
	return err
}

func (r *ExportRepositoryImpl) FindByUserID(ctx context.Context, userID string, limit int64) ([]ExportJob, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []ExportJob
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindExpired returns downloadable jobs whose archive lifetime has passed.
func (r *ExportRepositoryImpl) FindExpired(ctx context.Context, now time.Time) ([]ExportJob, error) {
	filter := bson.M{
		"status":     bson.M{"$in": []ExportStatus{ExportStatusReady, ExportStatusDownloaded}},
		"expires_at": bson.M{"$lt": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []ExportJob
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
