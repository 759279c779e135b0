package template

import (
	"context"
	"time"

	"go-dataport/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *MappingTemplate) error
	Get(ctx context.Context, id string) (*MappingTemplate, error)
	List(ctx context.Context, category string) ([]MappingTemplate, error)
	Delete(ctx context.Context, id string) error
}

type TemplateRepositoryImpl struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *database.MongodbDB) TemplateRepository {
	return &TemplateRepositoryImpl{
		collection: db.DB.Collection("mapping_templates"),
	}
}

func (r *TemplateRepositoryImpl) Create(ctx context.Context, tpl *MappingTemplate) error {
	if tpl.ID.IsZero() {
		tpl.ID = primitive.NewObjectID()
	}
	tpl.CreatedAt = time.Now()
	tpl.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, tpl)
	return err
}

func (r *TemplateRepositoryImpl) Get(ctx context.Context, id string) (*MappingTemplate, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var tpl MappingTemplate
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&tpl); err != nil {
		return nil, err
	}

	return &tpl, nil
}

func (r *TemplateRepositoryImpl) List(ctx context.Context, category string) ([]MappingTemplate, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var templates []MappingTemplate
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}

	return templates, nil
}

func (r *TemplateRepositoryImpl) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	return err
}
