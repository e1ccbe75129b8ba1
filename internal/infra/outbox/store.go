package outbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "divineconnect/internal/app/outbox"
)

// Delivery states of a stored booking event.
const (
	statePending   = "pending"
	stateSending   = "sending"
	stateDelivered = "delivered"
	stateRetrying  = "retrying"
	stateParked    = "parked"
)

const deliveredRetention = 3 * 24 * time.Hour

// Message is a booking event waiting in (or relayed from) the outbox collection.
type Message struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	BookingID   string            `bson:"aggregate"`
	Payload     []byte            `bson:"payload"`
	Headers     map[string]string `bson:"headers,omitempty"`
	OccurredAt  time.Time         `bson:"occurred_at"`
	State       string            `bson:"state"`
	Attempts    int               `bson:"attempts"`
	NextAttempt time.Time         `bson:"next_attempt_at"`
	ClaimedBy   string            `bson:"claimed_by,omitempty"`
	ClaimedAt   time.Time         `bson:"claimed_at,omitempty"`
	DeliveredAt time.Time         `bson:"delivered_at,omitempty"`
	LastError   string            `bson:"last_error,omitempty"`
}

func newMessage(rec appoutbox.EventRecord, now time.Time) Message {
	return Message{
		ID:          rec.ID,
		Name:        rec.Name,
		BookingID:   rec.Aggregate,
		Payload:     rec.Payload,
		Headers:     rec.Headers,
		OccurredAt:  rec.OccurredAt,
		State:       statePending,
		NextAttempt: now,
	}
}

// Record converts the message back into the event the orchestrator produced.
func (m Message) Record() appoutbox.EventRecord {
	return appoutbox.EventRecord{
		ID:         m.ID,
		Name:       m.Name,
		Payload:    m.Payload,
		OccurredAt: m.OccurredAt,
		Aggregate:  m.BookingID,
		Headers:    m.Headers,
	}
}

// Store is the Mongo outbox. Add joins the session carried by ctx, so events commit or
// roll back with the booking write that raised them.
type Store struct {
	col *mongo.Collection
	// leaseTimeout hands a message to another worker when its claimer went away.
	leaseTimeout time.Duration
	now          func() time.Time
}

func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	col := db.Collection("booking_outbox")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		{
			Keys: bson.D{{Key: "delivered_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(deliveredRetention.Seconds())).
				SetPartialFilterExpression(bson.M{"state": stateDelivered}),
		},
	})
	if err != nil {
		return nil, err
	}
	return &Store{col: col, leaseTimeout: time.Minute, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	_, err := s.col.InsertOne(ctx, newMessage(record, s.now()))
	return err
}

// Flush is a no-op; the Worker relays messages once they are committed.
func (s *Store) Flush(context.Context) error {
	return nil
}

// Claim leases the oldest due message to workerID. It returns nil when nothing is due.
func (s *Store) Claim(ctx context.Context, workerID string) (*Message, error) {
	now := s.now()
	due := bson.M{"$or": []bson.M{
		{"state": bson.M{"$in": []string{statePending, stateRetrying}}, "next_attempt_at": bson.M{"$lte": now}},
		{"state": stateSending, "claimed_at": bson.M{"$lte": now.Add(-s.leaseTimeout)}},
	}}
	lease := bson.M{"$set": bson.M{"state": stateSending, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "occurred_at", Value: 1}})

	var msg Message
	if err := s.col.FindOneAndUpdate(ctx, due, lease, opts).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (s *Store) Delivered(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"state": stateDelivered, "delivered_at": s.now()}})
	return err
}

func (s *Store) Retry(ctx context.Context, id string, next time.Time, cause string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"state": stateRetrying, "next_attempt_at": next, "last_error": cause},
		"$inc": bson.M{"attempts": 1},
	})
	return err
}

// Park stops relaying a message; it stays in the collection for inspection.
func (s *Store) Park(ctx context.Context, id string, cause string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"state": stateParked, "last_error": cause},
		"$inc": bson.M{"attempts": 1},
	})
	return err
}

var _ appoutbox.Outbox = (*Store)(nil)
var _ Relay = (*Store)(nil)
