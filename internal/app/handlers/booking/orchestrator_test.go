package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divineconnect/internal/app/apperr"
	bookingapp "divineconnect/internal/app/handlers/booking"
	"divineconnect/internal/app/policies"
	"divineconnect/internal/app/schedule"
	"divineconnect/internal/app/uow"
	"divineconnect/internal/domain/allocation"
	"divineconnect/internal/domain/availability"
	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/catalog"
	"divineconnect/internal/domain/pricing"
	"divineconnect/internal/domain/provider"
	"divineconnect/internal/domain/slots"
	"divineconnect/internal/infra/obs"
	"divineconnect/internal/infra/payments"
	"divineconnect/internal/infra/storage/memory"
)

const (
	slotDate  = "2025-03-10"
	slotLabel = "6:00 AM"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []policies.NotificationKind
}

func (n *recordingNotifier) Notify(_ context.Context, kind policies.NotificationKind, _ string) {
	n.mu.Lock()
	n.kinds = append(n.kinds, kind)
	n.mu.Unlock()
}

func (n *recordingNotifier) Kinds() []policies.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]policies.NotificationKind(nil), n.kinds...)
}

type scheduledTask struct {
	Name  string
	RunAt time.Time
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (s *recordingScheduler) Schedule(_ context.Context, name string, _ any, runAt time.Time) error {
	s.mu.Lock()
	s.tasks = append(s.tasks, scheduledTask{Name: name, RunAt: runAt})
	s.mu.Unlock()
	return nil
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchive) Put(_ context.Context, key string, document []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(document) == 0 {
		return "", errors.New("empty document")
	}
	a.keys = append(a.keys, key)
	return "https://archive.test/" + key, nil
}

// failingFactory opens real units whose commit always fails.
type failingFactory struct {
	uow.UoWFactory
	err error
}

func (f failingFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	unit, err := f.UoWFactory.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	return failingUnit{UnitOfWork: unit, err: f.err}, nil
}

type failingUnit struct {
	uow.UnitOfWork
	err error
}

func (u failingUnit) Commit(ctx context.Context) error {
	_ = u.UnitOfWork.Rollback(ctx)
	return u.err
}

// gatedFactory holds the commit of the first writable unit until release is closed.
type gatedFactory struct {
	uow.UoWFactory
	release  chan struct{}
	entered  chan struct{}
	mu       sync.Mutex
	writable int
}

func (f *gatedFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	unit, err := f.UoWFactory.Begin(ctx, opts)
	if err != nil || opts.ReadOnly {
		return unit, err
	}
	f.mu.Lock()
	f.writable++
	first := f.writable == 1
	f.mu.Unlock()
	if !first {
		return unit, nil
	}
	return gatedUnit{UnitOfWork: unit, release: f.release, entered: f.entered}, nil
}

type gatedUnit struct {
	uow.UnitOfWork
	release chan struct{}
	entered chan struct{}
}

func (u gatedUnit) Commit(ctx context.Context) error {
	close(u.entered)
	<-u.release
	return u.UnitOfWork.Commit(ctx)
}

type harness struct {
	orch      *bookingapp.Orchestrator
	factory   memory.Factory
	bookings  *memory.BookingRepository
	locker    *memory.SlotLocker
	escrow    *payments.Escrow
	notifier  *recordingNotifier
	scheduler *recordingScheduler
	outbox    *memory.Outbox
	clock     *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	cat := memory.NewCatalogRepository()
	cat.PutService(catalog.Service{
		ID:               "pooja-x",
		Kind:             catalog.KindPooja,
		Name:             "Pooja X",
		Category:         "pooja",
		RequiresProvider: true,
		Prices: catalog.PriceList{
			Currency:           "INR",
			Base:               map[catalog.Mode]int64{catalog.ModeAtTemple: 1100, catalog.ModeAtHome: 1500},
			MaterialsSurcharge: 200,
		},
		Active: true,
	})
	cat.PutService(catalog.Service{
		ID:       "seva-1",
		Kind:     catalog.KindTempleSeva,
		Name:     "Abhishekam",
		Category: "seva",
		Prices: catalog.PriceList{
			Currency: "INR",
			Base:     map[catalog.Mode]int64{catalog.ModeAtTemple: 600},
		},
		Active: true,
	})
	cat.PutTemple(catalog.Temple{ID: "t1", Name: "Temple One", City: "Varanasi"})
	cat.PutRoom(catalog.LodgingRoom{ID: "room-1", HotelName: "Ganga View", NightlyRate: 1000, Capacity: 2})
	cat.PutCoupon(catalog.Coupon{Code: "DIVINE10", Kind: catalog.CouponPercent, Value: 10, Active: true})
	cat.PutCoupon(catalog.Coupon{Code: "EARLY10", Kind: catalog.CouponPercent, Value: 10, Active: true,
		ValidFrom: clock.now.Add(-time.Hour), ValidUntil: clock.now.Add(5 * time.Minute)})

	providers := memory.NewProviderRepository(
		&provider.Profile{ID: "pr-a", Name: "Pandit A", Category: provider.CategoryOfficiant, Verified: true, Visible: true, Rating: 4.9, Capabilities: []string{"pooja"}},
		&provider.Profile{ID: "pr-b", Name: "Pandit B", Category: provider.CategoryOfficiant, Verified: true, Visible: true, Rating: 4.5, Capabilities: []string{"pooja"}},
	)
	bookings := memory.NewBookingRepository()
	factory := memory.Factory{
		BookingRepo:  bookings,
		ProviderRepo: providers,
		CatalogRepo:  cat,
		ReviewsRepo:  memory.NewReviewRepository(),
	}
	index := availability.NewIndex(bookings, providers, cat)
	locker := memory.NewSlotLocker().WithClock(clock.Now)
	h := &harness{
		factory:   factory,
		bookings:  bookings,
		locker:    locker,
		escrow:    payments.NewEscrow(),
		notifier:  &recordingNotifier{},
		scheduler: &recordingScheduler{},
		outbox:    memory.NewOutbox(nil, obs.Discard()),
		clock:     clock,
	}
	h.orch = &bookingapp.Orchestrator{
		UoWFactory: factory,
		Index:      index,
		Resolver:   allocation.NewResolver(index, providers, 24*time.Hour, slots.DefaultLocation),
		Pricing:    pricing.NewEngine(18),
		Locker:     locker,
		Payments:   h.escrow,
		Notifier:   h.notifier,
		Scheduler:  h.scheduler,
		Outbox:     h.outbox,
		Config: bookingapp.Config{
			DraftTTL:          10 * time.Minute,
			PendingPaymentTTL: 30 * time.Minute,
			LockWait:          time.Second,
			Capture:           bookingapp.CaptureDeferred,
		},
		Logger: obs.Discard(),
		Clock:  clock.Now,
	}
	return h
}

func templeRequest(userID string) domainbooking.Request {
	return domainbooking.Request{
		UserID:           userID,
		ServiceID:        "pooja-x",
		Mode:             catalog.ModeAtTemple,
		Date:             slotDate,
		Slot:             slotLabel,
		ParticipantCount: 1,
		Materials:        catalog.MaterialsProvider,
		TempleID:         "t1",
	}
}

func manualRequest(userID, providerID string) domainbooking.Request {
	req := templeRequest(userID)
	req.Manual = true
	req.ProviderID = providerID
	return req
}

func lodgingRequest(userID string, rooms int) domainbooking.Request {
	return domainbooking.Request{
		UserID:           userID,
		ServiceID:        "seva-1",
		Mode:             catalog.ModeAtTemple,
		Date:             slotDate,
		Slot:             slotLabel,
		ParticipantCount: 1,
		TempleID:         "t1",
		Lodging:          &domainbooking.LodgingSelection{RoomID: "room-1", Nights: 1, Rooms: rooms},
	}
}

func providerKey(id string) string {
	return slots.ProviderKey(id, slotDate, slotLabel).String()
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.From(err).Code, "error: %v", err)
}

func TestCreateBookingPricesAndAssignsBestProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)

	assert.Equal(t, domainbooking.StatusPending, b.Status)
	assert.Equal(t, domainbooking.AllocationAssigned, b.Allocation)
	assert.Equal(t, "pr-a", b.ProviderID)
	assert.Equal(t, int64(1300), b.Price.Subtotal.Amount)
	assert.Equal(t, int64(0), b.Price.Discount.Amount)
	assert.Equal(t, int64(234), b.Price.Tax.Amount)
	assert.Equal(t, int64(1534), b.Price.Total.Amount)
	require.Len(t, b.Holds, 1)
	assert.Equal(t, 1, h.locker.Used(providerKey("pr-a")))

	assert.Contains(t, h.notifier.Kinds(), policies.NotifyBookingPending)
	require.Len(t, h.scheduler.tasks, 1)
	assert.Equal(t, schedule.TaskExpireBooking, h.scheduler.tasks[0].Name)
	assert.Equal(t, b.CreatedAt.Add(30*time.Minute), h.scheduler.tasks[0].RunAt)
	require.NoError(t, h.outbox.Flush(ctx))
	assert.Contains(t, h.outbox.Published(), domainbooking.BookingRequested{}.EventName())
}

func TestCreateBookingAppliesPercentCoupon(t *testing.T) {
	h := newHarness(t)
	req := templeRequest("user-1")
	req.CouponCode = "divine10"

	b, err := h.orch.CreateBooking(context.Background(), req, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1300), b.Price.Subtotal.Amount)
	assert.Equal(t, int64(130), b.Price.Discount.Amount)
	assert.Equal(t, int64(211), b.Price.Tax.Amount)
	assert.Equal(t, int64(1381), b.Price.Total.Amount)
}

func TestCreateBookingRejectsUnknownCoupon(t *testing.T) {
	h := newHarness(t)
	req := templeRequest("user-1")
	req.CouponCode = "NOPE"

	_, err := h.orch.CreateBooking(context.Background(), req, "")

	assertCode(t, err, apperr.CodeInvalidCoupon)
	assert.Equal(t, 0, h.locker.Used(providerKey("pr-a")))
}

func TestCreateBookingRejectsUnofferedMode(t *testing.T) {
	h := newHarness(t)
	req := templeRequest("user-1")
	req.Mode = catalog.ModeVirtualOnBehalf
	req.Participants = []domainbooking.Participant{{Name: "Asha"}}

	_, err := h.orch.CreateBooking(context.Background(), req, "")

	assertCode(t, err, apperr.CodeUnavailableMode)
}

func TestCreateBookingRejectsPastSlot(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(30 * 24 * time.Hour)

	_, err := h.orch.CreateBooking(context.Background(), templeRequest("user-1"), "")

	assertCode(t, err, apperr.CodeValidation)
}

func TestConcurrentManualBookingsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		codes   []string
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.orch.CreateBooking(ctx, manualRequest("user-"+string(rune('a'+i)), "pr-a"), "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			codes = append(codes, apperr.From(err).Code)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	for _, code := range codes {
		assert.Contains(t, []string{apperr.CodeConflict, apperr.CodeManualUnavailable}, code)
	}
	active, err := h.bookings.Find(ctx, domainbooking.Filter{ExcludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, 1, h.locker.Used(providerKey("pr-a")))
}

func TestLodgingCapacityIsNeverExceeded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.CreateBooking(ctx, lodgingRequest("user-1", 1), "")
	require.NoError(t, err)
	_, err = h.orch.CreateBooking(ctx, lodgingRequest("user-2", 1), "")
	require.NoError(t, err)

	_, err = h.orch.CreateBooking(ctx, lodgingRequest("user-3", 1), "")
	assertCode(t, err, apperr.CodeConflict)
	assert.Equal(t, 2, h.locker.Used(slots.CapacityKey("room-1", slotDate).String()))
}

func TestCommittedBookingsGuardAgainstLostLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.orch.CreateBooking(ctx, lodgingRequest("user-1", 2), "")
	require.NoError(t, err)

	// a fresh ledger knows nothing of the committed booking
	h.orch.Locker = memory.NewSlotLocker().WithClock(h.clock.Now)

	_, err = h.orch.CreateBooking(ctx, lodgingRequest("user-2", 1), "")
	assertCode(t, err, apperr.CodeConflict)

	_, err = h.orch.CreateBooking(ctx, manualRequest("user-3", "pr-a"), "")
	require.NoError(t, err)
	h.orch.Locker = memory.NewSlotLocker().WithClock(h.clock.Now)

	_, err = h.orch.CreateBooking(ctx, manualRequest("user-4", "pr-a"), "")
	assertCode(t, err, apperr.CodeManualUnavailable)
}

func TestCancelFreesSlotForNextBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "")
	require.NoError(t, err)

	_, err = h.orch.CancelBooking(ctx, string(first.ID), policies.Actor{ID: "user-2", Role: policies.RoleDevotee}, "")
	assertCode(t, err, apperr.CodeForbidden)

	cancelled, err := h.orch.CancelBooking(ctx, string(first.ID), policies.Actor{ID: "user-1", Role: policies.RoleDevotee}, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, h.locker.Used(providerKey("pr-a")))
	assert.Empty(t, h.escrow.Movements())

	second, err := h.orch.CreateBooking(ctx, manualRequest("user-2", "pr-a"), "")
	require.NoError(t, err)
	assert.Equal(t, "pr-a", second.ProviderID)

	_, err = h.orch.CancelBooking(ctx, string(first.ID), policies.Actor{ID: "user-1", Role: policies.RoleDevotee}, "")
	assertCode(t, err, apperr.CodeInvalidTransition)
}

func TestPersistenceFailureReleasesHolds(t *testing.T) {
	h := newHarness(t)
	h.orch.UoWFactory = failingFactory{UoWFactory: h.factory, err: errors.New("disk full")}

	_, err := h.orch.CreateBooking(context.Background(), manualRequest("user-1", "pr-a"), "")

	assertCode(t, err, apperr.CodePersistence)
	assert.Equal(t, 0, h.locker.Used(providerKey("pr-a")))
	all, err := h.bookings.Find(context.Background(), domainbooking.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCancelPersistenceFailureRestoresHolds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "")
	require.NoError(t, err)

	h.orch.UoWFactory = failingFactory{UoWFactory: h.factory, err: errors.New("primary stepped down")}
	_, err = h.orch.CancelBooking(ctx, string(b.ID), policies.Actor{ID: "user-1"}, "")

	assertCode(t, err, apperr.CodePersistence)
	assert.Equal(t, 1, h.locker.Used(providerKey("pr-a")))
	stored, err := h.bookings.ByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, stored.Status)
}

func TestIdempotentCreateReturnsSameBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "key-1")
	require.NoError(t, err)
	again, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	all, err := h.bookings.Find(ctx, domainbooking.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestKeyedRetryWaitsForInFlightAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gate := &gatedFactory{UoWFactory: h.factory, release: make(chan struct{}), entered: make(chan struct{})}
	h.orch.UoWFactory = gate

	type outcome struct {
		booking *domainbooking.Booking
		err     error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		b, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "key-1")
		firstDone <- outcome{b, err}
	}()
	<-gate.entered
	require.Equal(t, 1, h.locker.Used(providerKey("pr-a")))

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(gate.release)
	}()
	retry, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "key-1")
	require.NoError(t, err)

	first := <-firstDone
	require.NoError(t, first.err)
	assert.Equal(t, first.booking.ID, retry.ID)
	all, err := h.bookings.Find(ctx, domainbooking.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestKeyedRequestStillReportsRealConflict(t *testing.T) {
	h := newHarness(t)
	h.orch.Config.LockWait = 50 * time.Millisecond
	ctx := context.Background()
	_, err := h.orch.CreateBooking(ctx, lodgingRequest("user-1", 2), "")
	require.NoError(t, err)

	_, err = h.orch.CreateBooking(ctx, lodgingRequest("user-2", 1), "key-2")

	assertCode(t, err, apperr.CodeConflict)
}

func TestManualSelectionOfUnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.CreateBooking(context.Background(), manualRequest("user-1", "pr-zzz"), "")

	assertCode(t, err, apperr.CodeManualUnavailable)
}

func TestPendingManualAssignmentThenAssign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "")
	require.NoError(t, err)
	_, err = h.orch.CreateBooking(ctx, manualRequest("user-2", "pr-b"), "")
	require.NoError(t, err)

	pending, err := h.orch.CreateBooking(ctx, templeRequest("user-3"), "")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.AllocationPendingManual, pending.Allocation)
	assert.Empty(t, pending.ProviderID)
	start, err := slots.Start(slotDate, slotLabel, slots.DefaultLocation)
	require.NoError(t, err)
	assert.Equal(t, start.Add(-24*time.Hour).UTC(), pending.AssignBy)
	assert.Contains(t, h.notifier.Kinds(), policies.NotifyAssignmentNeeded)

	admin := policies.Actor{ID: "ops", Role: policies.RoleAdmin}
	_, err = h.orch.AssignProvider(ctx, string(pending.ID), "pr-a", admin)
	assertCode(t, err, apperr.CodeConflict)

	_, err = h.orch.CancelBooking(ctx, string(a.ID), policies.Actor{ID: "user-1"}, "")
	require.NoError(t, err)

	_, err = h.orch.AssignProvider(ctx, string(pending.ID), "pr-a", policies.Actor{ID: "user-3", Role: policies.RoleDevotee})
	assertCode(t, err, apperr.CodeForbidden)

	assigned, err := h.orch.AssignProvider(ctx, string(pending.ID), "pr-a", admin)
	require.NoError(t, err)
	assert.Equal(t, "pr-a", assigned.ProviderID)
	assert.Equal(t, domainbooking.AllocationAssigned, assigned.Allocation)
	assert.Equal(t, 1, h.locker.Used(providerKey("pr-a")))

	_, err = h.orch.AssignProvider(ctx, string(pending.ID), "pr-b", admin)
	assertCode(t, err, apperr.CodeInvalidTransition)
}

func TestLifecycleThroughCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	devotee := policies.Actor{ID: "user-1", Role: policies.RoleDevotee}
	officiant := policies.Actor{ID: "pr-a", Role: policies.RoleProvider}
	archive := &recordingArchive{}
	h.orch.Archive = archive
	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)
	id := string(b.ID)

	_, err = h.orch.TransitionBooking(ctx, id, domainbooking.EventProviderStarted, officiant, bookingapp.PaymentCapture{}, "")
	assertCode(t, err, apperr.CodeInvalidTransition)

	_, err = h.orch.TransitionBooking(ctx, id, domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_1", Amount: 999}, "")
	assertCode(t, err, apperr.CodeValidation)

	confirmed, err := h.orch.TransitionBooking(ctx, id, domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_1", Amount: 1534}, "")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusConfirmed, confirmed.Status)
	assert.Equal(t, domainbooking.PaymentEscrowed, confirmed.Payment)

	_, err = h.orch.TransitionBooking(ctx, id, domainbooking.EventProviderStarted, policies.Actor{ID: "pr-b", Role: policies.RoleProvider}, bookingapp.PaymentCapture{}, "")
	assertCode(t, err, apperr.CodeForbidden)

	started, err := h.orch.TransitionBooking(ctx, id, domainbooking.EventProviderStarted, officiant, bookingapp.PaymentCapture{}, "")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusInProgress, started.Status)

	_, err = h.orch.CancelBooking(ctx, id, devotee, "")
	assertCode(t, err, apperr.CodeInvalidTransition)

	done, err := h.orch.TransitionBooking(ctx, id, domainbooking.EventProviderCompleted, officiant, bookingapp.PaymentCapture{}, "")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCompleted, done.Status)
	assert.Equal(t, domainbooking.PaymentReleased, done.Payment)
	assert.Equal(t, 0, h.locker.Used(providerKey("pr-a")))

	movements := h.escrow.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, payments.MovementRelease, movements[0].Kind)
	assert.Equal(t, "pi_1", movements[0].PaymentRef)
	assert.Equal(t, int64(1534), movements[0].Amount.Amount)

	cert, err := h.orch.IssueCertificate(ctx, id, devotee)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Number)
	assert.Equal(t, "Pooja X", cert.ServiceName)
	assert.Equal(t, "Pandit A", cert.ProviderName)
	assert.Equal(t, "https://archive.test/certificates/"+cert.Number+".json", cert.DocumentURL)
	again, err := h.orch.IssueCertificate(ctx, id, devotee)
	require.NoError(t, err)
	assert.Equal(t, cert.Number, again.Number)
	assert.Len(t, archive.keys, 2)
}

func TestCancelConfirmedBookingRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	devotee := policies.Actor{ID: "user-1", Role: policies.RoleDevotee}
	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)
	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_9", Amount: b.Price.Total.Amount}, "")
	require.NoError(t, err)

	cancelled, err := h.orch.CancelBooking(ctx, string(b.ID), devotee, "illness")
	require.NoError(t, err)

	assert.Equal(t, domainbooking.PaymentRefunded, cancelled.Payment)
	movements := h.escrow.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, payments.MovementRefund, movements[0].Kind)
	assert.Equal(t, int64(1534), movements[0].Amount.Amount)
}

func TestRefundFailureDoesNotFailCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	devotee := policies.Actor{ID: "user-1"}
	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)
	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_9", Amount: b.Price.Total.Amount}, "")
	require.NoError(t, err)
	h.escrow.Err = errors.New("gateway down")

	cancelled, err := h.orch.CancelBooking(ctx, string(b.ID), devotee, "")

	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, cancelled.Status)
}

func TestSweepExpiresUnpaidBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unpaid, err := h.orch.CreateBooking(ctx, manualRequest("user-1", "pr-a"), "")
	require.NoError(t, err)
	paid, err := h.orch.CreateBooking(ctx, manualRequest("user-2", "pr-b"), "")
	require.NoError(t, err)
	_, err = h.orch.TransitionBooking(ctx, string(paid.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_2", Amount: paid.Price.Total.Amount}, "")
	require.NoError(t, err)

	n, err := h.orch.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(31 * time.Minute)
	n, err = h.orch.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.bookings.ByID(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, stored.Status)
	assert.Equal(t, "payment_timeout", stored.CancelReason)
	assert.Equal(t, 0, h.locker.Used(providerKey("pr-a")))
	assert.Equal(t, 1, h.locker.Used(providerKey("pr-b")))
	assert.Contains(t, h.notifier.Kinds(), policies.NotifyBookingExpired)

	again, err := h.orch.ExpireBooking(ctx, string(unpaid.ID))
	require.NoError(t, err)
	assert.False(t, again)
}

func TestSynchronousCaptureConfirmsImmediately(t *testing.T) {
	h := newHarness(t)
	h.orch.Config.Capture = bookingapp.CaptureSynchronous

	b, err := h.orch.CreateBooking(context.Background(), templeRequest("user-1"), "")
	require.NoError(t, err)

	assert.Equal(t, domainbooking.StatusConfirmed, b.Status)
	assert.Equal(t, domainbooking.PaymentEscrowed, b.Payment)
	assert.Empty(t, h.scheduler.tasks)
}

func TestDevoteeCannotReportOwnPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	devotee := policies.Actor{ID: "user-1", Role: policies.RoleDevotee}
	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)

	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, devotee, bookingapp.PaymentCapture{Ref: "i-paid"}, "")
	assertCode(t, err, apperr.CodeForbidden)
	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, devotee, bookingapp.PaymentCapture{Ref: "i-paid", Amount: 1534}, "")
	assertCode(t, err, apperr.CodeForbidden)

	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_1"}, "")
	assertCode(t, err, apperr.CodeValidation)

	stored, err := h.bookings.ByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, stored.Status)
	assert.Equal(t, domainbooking.PaymentUnpaid, stored.Payment)

	_, err = h.orch.CancelBooking(ctx, string(b.ID), devotee, "")
	require.NoError(t, err)
	assert.Empty(t, h.escrow.Movements())
}

func TestCaptureHonoursCouponValidAtBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := templeRequest("user-1")
	req.CouponCode = "EARLY10"
	b, err := h.orch.CreateBooking(ctx, req, "")
	require.NoError(t, err)
	require.Equal(t, int64(1381), b.Price.Total.Amount)

	h.clock.Advance(10 * time.Minute)
	confirmed, err := h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_1", Amount: 1381}, "")

	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(1381), confirmed.Price.Total.Amount)

	_, err = h.orch.CreateBooking(ctx, req, "")
	assertCode(t, err, apperr.CodeInvalidCoupon)
}

func TestLateCaptureOnExpiredBookingIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, err := h.orch.CreateBooking(ctx, templeRequest("user-1"), "")
	require.NoError(t, err)
	h.clock.Advance(31 * time.Minute)
	n, err := h.orch.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.orch.TransitionBooking(ctx, string(b.ID), domainbooking.EventPaymentCaptured, policies.SystemActor, bookingapp.PaymentCapture{Ref: "pi_late", Amount: 1534}, "")

	assertCode(t, err, apperr.CodeInvalidTransition)
	movements := h.escrow.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, payments.MovementRefund, movements[0].Kind)
	assert.Equal(t, "pi_late", movements[0].PaymentRef)
	assert.Equal(t, int64(1534), movements[0].Amount.Amount)
	stored, err := h.bookings.ByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, stored.Status)
}
