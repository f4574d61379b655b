package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/msgbus"
	"github.com/emberchat/ember/internal/store"
)

var testBase = time.Unix(1700000000, 0).UTC()

func testDate(id int64) time.Time {
	return testBase.Add(time.Duration(id) * time.Minute)
}

func storedMessage(peer models.Peer, id int64) models.Message {
	return models.Message{
		Peer:      peer,
		MessageID: id,
		GlobalID:  1000 + id,
		FromID:    7,
		Date:      testDate(id),
		Text:      "m",
	}
}

type testEnv struct {
	repo *store.MessageRepository
	bus  *msgbus.InMemoryBus
	ctrl *Controller
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if cfg.Peer.IsZero() {
		cfg.Peer = models.UserPeer(1)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	bus := msgbus.NewInMemoryBus()
	repo := store.NewMessageRepository(db)

	ctrl, err := NewController(cfg, repo, bus)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(ctrl.Dispose)

	return &testEnv{repo: repo, bus: bus, ctrl: ctrl}
}

func (e *testEnv) seed(t *testing.T, ids ...int64) {
	t.Helper()
	msgs := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, storedMessage(e.ctrl.Peer(), id))
	}
	if err := e.repo.Save(context.Background(), msgs...); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (e *testEnv) seedRange(t *testing.T, from, to int64) {
	t.Helper()
	ids := make([]int64, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	e.seed(t, ids...)
}

func (e *testEnv) collectChanges() *[]Change {
	changes := &[]Change{}
	e.ctrl.Observe(func(c Change) { *changes = append(*changes, c) })
	return changes
}

func TestLoadInitialNewestSlice(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 100)

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	msgs := env.ctrl.Messages()
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	assertOrdered(t, msgs, false)
	assertNoDuplicateIDs(t, msgs)
	if msgs[0].MessageID != 91 || msgs[9].MessageID != 100 {
		t.Fatalf("expected newest slice 91..100, got %v", ids(msgs))
	}

	oldest, newest := env.ctrl.IDBounds()
	if oldest != 91 || newest != 100 {
		t.Fatalf("unexpected id bounds: %d..%d", oldest, newest)
	}
	minDate, maxDate := env.ctrl.Bounds()
	if !minDate.Equal(testDate(91)) || !maxDate.Equal(testDate(100)) {
		t.Fatalf("unexpected date bounds: %v..%v", minDate, maxDate)
	}

	if !env.ctrl.CanLoadOlderFromLocal() {
		t.Fatal("expected older messages available locally")
	}
	if env.ctrl.CanLoadNewerFromLocal() {
		t.Fatal("expected no newer messages locally")
	}
}

func TestLoadInitialReversed(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5, Reversed: true})
	env.seedRange(t, 1, 20)

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{20, 19, 18, 17, 16})
	assertOrdered(t, msgs, true)
}

func TestLoadBatchOlderExtendsWindow(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 30)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	if err := env.ctrl.LoadBatch(ctx, LoadOlder); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}

	msgs := env.ctrl.Messages()
	if len(msgs) != 30 {
		t.Fatalf("expected full history, got %d messages", len(msgs))
	}
	assertOrdered(t, msgs, false)
	assertNoDuplicateIDs(t, msgs)
	if env.ctrl.CanLoadOlderFromLocal() {
		t.Fatal("expected no further older messages")
	}

	if len(*changes) != 1 || (*changes)[0].Kind != ChangeKindAdded {
		t.Fatalf("expected one Added change, got %+v", *changes)
	}
	if got := (*changes)[0].Indices[0]; got != 0 {
		t.Fatalf("older batch should prepend, first index %d", got)
	}

	// Exhausted history: a further load is a defined no-op.
	if err := env.ctrl.LoadBatch(ctx, LoadOlder); err != nil {
		t.Fatalf("LoadBatch after exhaustion: %v", err)
	}
	if len(*changes) != 1 {
		t.Fatalf("no-op load must not emit changes, got %+v", *changes)
	}
}

func TestLoadBatchCrossesTimestampTiePileup(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5, BatchLimit: 3})

	// Ten messages sharing one timestamp: a page of BatchLimit from the
	// cursor comes back all duplicates.
	shared := testDate(0)
	ties := make([]models.Message, 0, 10)
	for id := int64(1); id <= 10; id++ {
		msg := storedMessage(env.ctrl.Peer(), id)
		msg.Date = shared
		ties = append(ties, msg)
	}
	ctx := context.Background()
	if err := env.repo.Save(ctx, ties...); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	assertIDs(t, env.ctrl.Messages(), []int64{6, 7, 8, 9, 10})

	if err := env.ctrl.LoadBatch(ctx, LoadOlder); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if env.ctrl.Len() == 5 {
		t.Fatal("load made no progress across the tie pileup")
	}
	if !env.ctrl.CanLoadOlderFromLocal() && env.ctrl.Len() != 10 {
		t.Fatalf("older reported exhausted with only %d of 10 loaded", env.ctrl.Len())
	}

	for env.ctrl.CanLoadOlderFromLocal() {
		before := env.ctrl.Len()
		if err := env.ctrl.LoadBatch(ctx, LoadOlder); err != nil {
			t.Fatalf("LoadBatch: %v", err)
		}
		if env.ctrl.Len() == before {
			t.Fatal("pagination stuck while older messages exist")
		}
	}

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	assertOrdered(t, msgs, false)
	assertNoDuplicateIDs(t, msgs)
}

func TestLoadBatchNewerAfterRecenter(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5, AroundBudget: 6})
	env.seedRange(t, 1, 200)

	ctx := context.Background()
	found, err := env.ctrl.LoadAroundMessage(ctx, 50)
	if err != nil {
		t.Fatalf("LoadAroundMessage: %v", err)
	}
	if !found {
		t.Fatal("expected target present")
	}
	if !env.ctrl.CanLoadNewerFromLocal() {
		t.Fatal("expected newer messages available after recenter")
	}

	before := env.ctrl.Len()
	if err := env.ctrl.LoadBatch(ctx, LoadNewer); err != nil {
		t.Fatalf("LoadBatch newer: %v", err)
	}
	msgs := env.ctrl.Messages()
	if len(msgs) <= before {
		t.Fatalf("expected window to grow, %d -> %d", before, len(msgs))
	}
	assertOrdered(t, msgs, false)
	assertNoDuplicateIDs(t, msgs)
}

func TestAddViaBusIsIdempotent(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 3)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	fresh := storedMessage(env.ctrl.Peer(), 4)
	env.bus.Added([]models.Message{fresh}, env.ctrl.Peer())

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{1, 2, 3, 4})

	// Duplicate delivery of the same event changes nothing.
	env.bus.Added([]models.Message{fresh}, env.ctrl.Peer())
	assertIDs(t, env.ctrl.Messages(), []int64{1, 2, 3, 4})

	if len(*changes) != 1 {
		t.Fatalf("expected a single Added change, got %+v", *changes)
	}
	change := (*changes)[0]
	if change.Kind != ChangeKindAdded || len(change.Indices) != 1 || change.Indices[0] != 3 {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestAddForOtherPeerIsIgnored(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 2)

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	other := models.ChatPeer(99)
	foreign := storedMessage(other, 50)
	env.bus.Added([]models.Message{foreign}, other)

	if env.ctrl.Len() != 2 {
		t.Fatalf("foreign add must not touch the window, len=%d", env.ctrl.Len())
	}
}

func TestAddBackfilledMessageKeepsOrder(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 10, 12)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	// A backfill publishes a message older than the window tail.
	env.bus.Added([]models.Message{storedMessage(env.ctrl.Peer(), 5)}, env.ctrl.Peer())

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{5, 10, 11, 12})
	assertOrdered(t, msgs, false)
}

func TestUpdateViaBus(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 3)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	edited := storedMessage(env.ctrl.Peer(), 2)
	edited.Text = "edited"
	editDate := testDate(9)
	edited.EditDate = &editDate
	env.bus.Updated(edited, env.ctrl.Peer(), true)

	msgs := env.ctrl.Messages()
	if msgs[1].Text != "edited" || msgs[1].EditDate == nil {
		t.Fatalf("expected in-place edit, got %+v", msgs[1])
	}

	if len(*changes) != 1 {
		t.Fatalf("expected one change, got %+v", *changes)
	}
	change := (*changes)[0]
	if change.Kind != ChangeKindUpdated || change.Indices[0] != 1 || !change.Animated {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestUpdateOutsideWindowIsDropped(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 3)

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	outside := storedMessage(env.ctrl.Peer(), 77) // never loaded
	env.bus.Updated(outside, env.ctrl.Peer(), false)

	if len(*changes) != 0 {
		t.Fatalf("update outside window must be dropped, got %+v", *changes)
	}
}

func TestDeleteScenario(t *testing.T) {
	// End-to-end scenario: window [10,11,12], delete 11.
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 10, 12)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	env.bus.Deleted([]int64{11}, env.ctrl.Peer())

	assertIDs(t, env.ctrl.Messages(), []int64{10, 12})
	oldest, newest := env.ctrl.IDBounds()
	if oldest != 10 || newest != 12 {
		t.Fatalf("unexpected bounds after delete: %d..%d", oldest, newest)
	}

	if len(*changes) != 1 {
		t.Fatalf("expected one change, got %+v", *changes)
	}
	change := (*changes)[0]
	if change.Kind != ChangeKindDeleted {
		t.Fatalf("expected Deleted change, got %+v", change)
	}
	if len(change.Indices) != 1 || change.Indices[0] != 1 {
		t.Fatalf("expected original index 1, got %v", change.Indices)
	}
	if len(change.GlobalIDs) != 1 || change.GlobalIDs[0] != 1011 {
		t.Fatalf("expected global id 1011, got %v", change.GlobalIDs)
	}
}

func TestDeleteUnknownIDIsNoOp(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 1, 2)

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	env.bus.Deleted([]int64{42}, env.ctrl.Peer())

	if env.ctrl.Len() != 2 || len(*changes) != 0 {
		t.Fatalf("unknown delete must be a no-op, len=%d changes=%+v", env.ctrl.Len(), *changes)
	}
}

func TestReloadAtBottomRefetchesNewest(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5})
	env.seedRange(t, 1, 5)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	// New activity lands in the store; the consumer is at the bottom.
	env.seed(t, 6, 7)
	env.bus.Reload(env.ctrl.Peer(), true)

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{3, 4, 5, 6, 7})

	if len(*changes) != 1 || (*changes)[0].Kind != ChangeKindReload || !(*changes)[0].Animated {
		t.Fatalf("expected animated Reload change, got %+v", *changes)
	}
}

func TestReloadNotAtBottomKeepsSpan(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 10})
	env.seedRange(t, 21, 30)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	env.ctrl.SetAtBottom(false)

	minBefore, maxBefore := env.ctrl.Bounds()

	// A newer message arrives and an in-span message is edited in the store.
	env.seed(t, 31)
	if err := env.repo.ApplyEdit(ctx, env.ctrl.Peer(), 25, "refreshed", testDate(40)); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}

	changes := env.collectChanges()
	env.bus.Reload(env.ctrl.Peer(), false)

	msgs := env.ctrl.Messages()
	assertIDs(t, msgs, []int64{21, 22, 23, 24, 25, 26, 27, 28, 29, 30})

	minAfter, maxAfter := env.ctrl.Bounds()
	if !minAfter.Equal(minBefore) || !maxAfter.Equal(maxBefore) {
		t.Fatalf("span must not move: %v..%v -> %v..%v", minBefore, maxBefore, minAfter, maxAfter)
	}

	if msgs[4].Text != "refreshed" {
		t.Fatalf("expected fresh contents within span, got %q", msgs[4].Text)
	}
	if len(*changes) != 1 || (*changes)[0].Kind != ChangeKindReload {
		t.Fatalf("expected coarse Reload change, got %+v", *changes)
	}
}

func TestRecenterTargetAbsent(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5})
	env.seedRange(t, 1, 10)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	before := ids(env.ctrl.Messages())

	found, err := env.ctrl.LoadAroundMessage(ctx, 999)
	if err != nil {
		t.Fatalf("LoadAroundMessage: %v", err)
	}
	if found {
		t.Fatal("expected target absent")
	}
	assertIDs(t, env.ctrl.Messages(), before)
}

func TestRecenterReplacesWindow(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5, AroundBudget: 10})
	env.seedRange(t, 1, 200)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	changes := env.collectChanges()

	found, err := env.ctrl.LoadAroundMessage(ctx, 100)
	if err != nil {
		t.Fatalf("LoadAroundMessage: %v", err)
	}
	if !found {
		t.Fatal("expected target present")
	}

	msgs := env.ctrl.Messages()
	assertOrdered(t, msgs, false)
	assertNoDuplicateIDs(t, msgs)

	var hasTarget bool
	for i := range msgs {
		if msgs[i].MessageID == 100 {
			hasTarget = true
		}
	}
	if !hasTarget {
		t.Fatal("target missing from recentered window")
	}
	if msgs[len(msgs)-1].MessageID == 200 {
		t.Fatal("window should be centered, not pinned to newest")
	}

	if len(*changes) != 1 || (*changes)[0].Kind != ChangeKindReload {
		t.Fatalf("expected Reload change, got %+v", *changes)
	}
}

func TestObserveReplacement(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5})
	env.seedRange(t, 1, 2)

	firstCalls := 0
	env.ctrl.Observe(func(Change) { firstCalls++ })

	secondCalls := 0
	env.ctrl.Observe(func(Change) { secondCalls++ })

	if err := env.ctrl.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	if firstCalls != 0 || secondCalls != 1 {
		t.Fatalf("re-registration must replace the callback: first=%d second=%d", firstCalls, secondCalls)
	}
}

func TestDisposeDetachesFromBus(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5})
	env.seedRange(t, 1, 2)

	ctx := context.Background()
	if err := env.ctrl.LoadInitial(ctx); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	env.ctrl.Dispose()
	env.ctrl.Dispose() // idempotent

	if env.bus.SubscriberCount() != 0 {
		t.Fatalf("expected bus detach, %d subscribers left", env.bus.SubscriberCount())
	}

	env.bus.Added([]models.Message{storedMessage(env.ctrl.Peer(), 3)}, env.ctrl.Peer())
	if env.ctrl.Len() != 2 {
		t.Fatal("disposed controller must not apply updates")
	}

	if err := env.ctrl.LoadInitial(ctx); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestGapRangeOperations(t *testing.T) {
	env := newTestEnv(t, Config{InitialLimit: 5})

	env.ctrl.AddGapRange(1, 5)
	env.ctrl.AddGapRange(10, 4)
	assertRanges(t, env.ctrl.GapRanges(), []GapRange{{1, 10}})

	env.ctrl.SetGapRanges([]GapRange{{20, 25}, {1, 5}, {6, 9}})
	assertRanges(t, env.ctrl.GapRanges(), []GapRange{{1, 9}, {20, 25}})

	env.ctrl.ClearGapRanges()
	if len(env.ctrl.GapRanges()) != 0 {
		t.Fatal("expected empty gap set")
	}
}
