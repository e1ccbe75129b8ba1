package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "divineconnect/internal/domain/booking"
	domaincatalog "divineconnect/internal/domain/catalog"
	domainprovider "divineconnect/internal/domain/provider"
	domainreviews "divineconnect/internal/domain/reviews"
)

type providerDocument struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Category        string    `bson:"category"`
	Verified        bool      `bson:"verified"`
	Visible         bool      `bson:"visible"`
	Locality        string    `bson:"locality"`
	Languages       []string  `bson:"languages"`
	Rating          float64   `bson:"rating"`
	ReviewCount     int       `bson:"review_count"`
	ExperienceYears int       `bson:"experience_years"`
	Capabilities    []string  `bson:"capabilities"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func (d providerDocument) toProfile() *domainprovider.Profile {
	return &domainprovider.Profile{
		ID:              domainprovider.ID(d.ID),
		Name:            d.Name,
		Category:        domainprovider.Category(d.Category),
		Verified:        d.Verified,
		Visible:         d.Visible,
		Locality:        d.Locality,
		Languages:       d.Languages,
		Rating:          d.Rating,
		ReviewCount:     d.ReviewCount,
		ExperienceYears: d.ExperienceYears,
		Capabilities:    d.Capabilities,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type ProviderRepository struct {
	col *mongo.Collection
}

func NewProviderRepository(db *mongo.Database) *ProviderRepository {
	return &ProviderRepository{col: db.Collection("providers")}
}

func (r *ProviderRepository) ByID(ctx context.Context, id domainprovider.ID) (*domainprovider.Profile, error) {
	var doc providerDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainprovider.ErrNotFound
		}
		return nil, err
	}
	return doc.toProfile(), nil
}

func (r *ProviderRepository) FindCandidates(ctx context.Context, f domainprovider.Filter) ([]*domainprovider.Profile, error) {
	filter := bson.M{}
	if f.VerifiedOnly {
		filter["verified"] = true
	}
	if f.VisibleOnly {
		filter["visible"] = true
	}
	if f.Capability != "" {
		filter["capabilities"] = f.Capability
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainprovider.Profile, 0)
	for cur.Next(ctx) {
		var doc providerDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toProfile())
	}
	return out, cur.Err()
}

func (r *ProviderRepository) Save(ctx context.Context, p *domainprovider.Profile) error {
	doc := providerDocument{
		ID:              string(p.ID),
		Name:            p.Name,
		Category:        string(p.Category),
		Verified:        p.Verified,
		Visible:         p.Visible,
		Locality:        p.Locality,
		Languages:       p.Languages,
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		ExperienceYears: p.ExperienceYears,
		Capabilities:    p.Capabilities,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// CatalogRepository reads the service catalog. Documents are written by catalog tooling,
// so the domain structs are stored as they are.
type CatalogRepository struct {
	services *mongo.Collection
	temples  *mongo.Collection
	rooms    *mongo.Collection
	coupons  *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{
		services: db.Collection("catalog_services"),
		temples:  db.Collection("catalog_temples"),
		rooms:    db.Collection("catalog_rooms"),
		coupons:  db.Collection("catalog_coupons"),
	}
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.M, notFound error) (*T, error) {
	var out T
	if err := col.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *CatalogRepository) Service(ctx context.Context, id domaincatalog.ServiceID) (*domaincatalog.Service, error) {
	return findOne[domaincatalog.Service](ctx, r.services, bson.M{"id": string(id)}, domaincatalog.ErrServiceNotFound)
}

func (r *CatalogRepository) Temple(ctx context.Context, id string) (*domaincatalog.Temple, error) {
	return findOne[domaincatalog.Temple](ctx, r.temples, bson.M{"id": id}, domaincatalog.ErrTempleNotFound)
}

func (r *CatalogRepository) LodgingRoom(ctx context.Context, id string) (*domaincatalog.LodgingRoom, error) {
	return findOne[domaincatalog.LodgingRoom](ctx, r.rooms, bson.M{"id": id}, domaincatalog.ErrRoomNotFound)
}

func (r *CatalogRepository) Coupon(ctx context.Context, code string) (*domaincatalog.Coupon, error) {
	return findOne[domaincatalog.Coupon](ctx, r.coupons, bson.M{"code": domaincatalog.NormalizeCode(code)}, domaincatalog.ErrCouponNotFound)
}

// Seed upserts catalog entries, used to load fixtures into an empty database.
func (r *CatalogRepository) Seed(ctx context.Context, services []domaincatalog.Service, temples []domaincatalog.Temple, rooms []domaincatalog.LodgingRoom, coupons []domaincatalog.Coupon) error {
	upsert := options.Replace().SetUpsert(true)
	for _, s := range services {
		if _, err := r.services.ReplaceOne(ctx, bson.M{"id": string(s.ID)}, s, upsert); err != nil {
			return err
		}
	}
	for _, t := range temples {
		if _, err := r.temples.ReplaceOne(ctx, bson.M{"id": t.ID}, t, upsert); err != nil {
			return err
		}
	}
	for _, room := range rooms {
		if _, err := r.rooms.ReplaceOne(ctx, bson.M{"id": room.ID}, room, upsert); err != nil {
			return err
		}
	}
	for _, c := range coupons {
		c.Code = domaincatalog.NormalizeCode(c.Code)
		if _, err := r.coupons.ReplaceOne(ctx, bson.M{"code": c.Code}, c, upsert); err != nil {
			return err
		}
	}
	return nil
}

type reviewDocument struct {
	ID         string    `bson:"_id"`
	BookingID  string    `bson:"booking_id"`
	AuthorID   string    `bson:"author_id"`
	ProviderID string    `bson:"provider_id"`
	ServiceID  string    `bson:"service_id"`
	Rating     int       `bson:"rating"`
	Text       string    `bson:"text"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (d reviewDocument) toReview() *domainreviews.Review {
	return &domainreviews.Review{
		ID:         domainreviews.ReviewID(d.ID),
		BookingID:  domainbooking.ID(d.BookingID),
		AuthorID:   d.AuthorID,
		ProviderID: d.ProviderID,
		ServiceID:  d.ServiceID,
		Rating:     d.Rating,
		Text:       d.Text,
		CreatedAt:  d.CreatedAt,
	}
}

type ReviewRepository struct {
	col *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{col: db.Collection("reviews")}
}

func (r *ReviewRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *ReviewRepository) ByBooking(ctx context.Context, bookingID domainbooking.ID) (*domainreviews.Review, error) {
	var doc reviewDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": string(bookingID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreviews.ErrNotFound
		}
		return nil, err
	}
	return doc.toReview(), nil
}

func (r *ReviewRepository) ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]*domainreviews.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"provider_id": providerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainreviews.Review, 0)
	for cur.Next(ctx) {
		var doc reviewDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toReview())
	}
	return out, cur.Err()
}

func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	doc := reviewDocument{
		ID:         string(review.ID),
		BookingID:  string(review.BookingID),
		AuthorID:   review.AuthorID,
		ProviderID: review.ProviderID,
		ServiceID:  review.ServiceID,
		Rating:     review.Rating,
		Text:       review.Text,
		CreatedAt:  review.CreatedAt,
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

var (
	_ domainprovider.Repository = (*ProviderRepository)(nil)
	_ domaincatalog.Repository  = (*CatalogRepository)(nil)
	_ domainreviews.Repository  = (*ReviewRepository)(nil)
)
