package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/slotlock"
)

const providerSlotIndex = "uniq_active_provider_slot"

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("agg_booking")}
}

// EnsureIndexes creates the lookup indexes and the partial unique index that keeps two
// active bookings off the same provider slot even if the slot ledger is lost.
func (r *BookingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider_slot", Value: 1}},
			Options: options.Index().SetName(providerSlotIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true, "provider_slot": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "holds.key", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = 1
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return mapWriteErr(err, domainbooking.ErrDuplicate)
	}
	b.Version = 1
	return nil
}

func (r *BookingRepository) Update(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": b.Version}, doc)
	if err != nil {
		return mapWriteErr(err, domainbooking.ErrConcurrentUpdate)
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": doc.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domainbooking.ErrNotFound
		}
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) Find(ctx context.Context, f domainbooking.Filter) ([]*domainbooking.Booking, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.ProviderID != "" {
		filter["provider_id"] = f.ProviderID
	}
	if f.HoldKey != "" {
		filter["holds.key"] = f.HoldKey
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	if f.Slot != "" {
		filter["slot"] = f.Slot
	}
	if f.ExcludeCancelled {
		filter["active"] = true
	}
	if f.Unassigned {
		filter["provider_id"] = bson.M{"$exists": false}
		filter["allocation"] = string(domainbooking.AllocationPendingManual)
	}
	if !f.CreatedBefore.IsZero() {
		filter["created_at"] = bson.M{"$lt": f.CreatedBefore.UTC()}
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainbooking.Booking, 0)
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

// mapWriteErr turns a provider slot index violation into a slot conflict and any other
// duplicate key into dup.
func mapWriteErr(err, dup error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if strings.Contains(err.Error(), providerSlotIndex) {
		return slotlock.ErrConflict
	}
	return dup
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
