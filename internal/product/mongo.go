package product

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/storefront/service/internal/storage"
)

const collectionName = "products"

// mongoProduct is the stored document. imageKey and imageStorage are absent on documents
// written before they were introduced.
type mongoProduct struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Price        float64            `bson:"price"`
	Description  string             `bson:"description"`
	Category     string             `bson:"category"`
	ImageURL     string             `bson:"imageUrl"`
	ImageKey     string             `bson:"imageKey,omitempty"`
	ImageStorage string             `bson:"imageStorage,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d *mongoProduct) toProduct() Product {
	return Product{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Price:        d.Price,
		Description:  d.Description,
		Category:     d.Category,
		ImageURL:     d.ImageURL,
		ImageKey:     d.ImageKey,
		ImageStorage: storage.URLMode(d.ImageStorage),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoRepository stores products in a MongoDB collection.
type MongoRepository struct {
	db  *mongo.Database
	now func() time.Time
}

// NewMongoRepository creates a new MongoRepository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }}
}

func (r *MongoRepository) collection() *mongo.Collection {
	return r.db.Collection(collectionName)
}

// List returns all products, newest first.
func (r *MongoRepository) List(ctx context.Context) ([]Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection().Find(ctx, bson.D{}, opts)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "ListProducts").Msg("")
		return nil, err
	}

	var docs []mongoProduct
	if err := cursor.All(ctx, &docs); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "ListProducts").Msg("")
		return nil, err
	}

	products := make([]Product, 0, len(docs))
	for i := range docs {
		products = append(products, docs[i].toProduct())
	}
	return products, nil
}

// GetByID fetches a product by its hex ObjectID.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc mongoProduct
	err = r.collection().FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str("component", "GetProductByID").Msg("")
		return nil, err
	}

	p := doc.toProduct()
	return &p, nil
}

// Create inserts p and fills in the generated id and timestamps.
func (r *MongoRepository) Create(ctx context.Context, p *Product) error {
	now := r.now()
	doc := mongoProduct{
		Name:         p.Name,
		Price:        p.Price,
		Description:  p.Description,
		Category:     p.Category,
		ImageURL:     p.ImageURL,
		ImageKey:     p.ImageKey,
		ImageStorage: string(p.ImageStorage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := r.collection().InsertOne(ctx, doc)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "AddProduct").Msg("")
		return err
	}

	p.ID = result.InsertedID.(primitive.ObjectID).Hex()
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Update overwrites the mutable fields of p.
func (r *MongoRepository) Update(ctx context.Context, p *Product) error {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return ErrNotFound
	}

	now := r.now()
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: p.Name},
		{Key: "price", Value: p.Price},
		{Key: "description", Value: p.Description},
		{Key: "category", Value: p.Category},
		{Key: "imageUrl", Value: p.ImageURL},
		{Key: "imageKey", Value: p.ImageKey},
		{Key: "imageStorage", Value: string(p.ImageStorage)},
		{Key: "updatedAt", Value: now},
	}}}

	result, err := r.collection().UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "UpdateProduct").Msg("Failed to update product")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	p.UpdatedAt = now
	return nil
}

// Delete removes the product document.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	result, err := r.collection().DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "DeleteProduct").Msg("")
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
