package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/msgbus"
	"github.com/emberchat/ember/internal/store"
)

// ErrDisposed is returned by operations on a disposed controller.
var ErrDisposed = errors.New("window controller disposed")

// LoadDirection selects which edge of the window LoadBatch extends.
type LoadDirection int

const (
	LoadOlder LoadDirection = iota
	LoadNewer
)

func (d LoadDirection) String() string {
	if d == LoadNewer {
		return "newer"
	}
	return "older"
}

// Store is the read contract the controller consumes from the persisted
// store. *store.MessageRepository satisfies it; tests substitute fakes.
type Store interface {
	Query(ctx context.Context, peer models.Peer, q store.MessageQuery) ([]models.Message, error)
	ExistsBeyond(ctx context.Context, peer models.Peer, id int64, newer bool) (bool, error)
}

const (
	// DefaultInitialLimit is the initial load size when the viewport
	// height is unknown.
	DefaultInitialLimit = 60

	// overscanRows is added to the viewport height so the first load
	// covers a little scrollback.
	overscanRows = 20

	defaultBatchLimit    = 100
	defaultGrowThreshold = 300
	defaultAroundBudget  = 80
	minAroundSide        = 25
)

// InitialLimitForViewport sizes the initial load to fill one screen of rows
// plus overscan, falling back to DefaultInitialLimit when rows is unknown.
func InitialLimitForViewport(rows int) int {
	if rows <= 0 {
		return DefaultInitialLimit
	}
	return rows + overscanRows
}

// Config configures a window controller for one conversation.
type Config struct {
	// Peer is the conversation this window materializes.
	Peer models.Peer

	// Reversed inverts presentation order (newest first), used by
	// bottom-anchored UIs.
	Reversed bool

	// InitialLimit is the row count for the initial load;
	// <= 0 uses DefaultInitialLimit.
	InitialLimit int

	// BatchLimit is the page size for LoadBatch; <= 0 uses 100.
	BatchLimit int

	// GrownBatchLimit replaces BatchLimit once the window holds more than
	// GrowThreshold messages, amortizing query overhead; <= 0 doubles
	// BatchLimit.
	GrownBatchLimit int

	// GrowThreshold is the window length beyond which GrownBatchLimit
	// applies; <= 0 uses 300.
	GrowThreshold int

	// AroundBudget is the total row budget for LoadAroundMessage,
	// split across both sides; <= 0 uses 80.
	AroundBudget int

	// Location is the timezone for day sectioning; nil uses time.Local.
	Location *time.Location
}

// Controller owns the message window for one open conversation.
//
// All state lives behind one mutex: every mutation entry point (loads,
// recenter, bus events, gap edits) locks it, which serializes them the way a
// single-writer queue would. Observer callbacks run outside the lock on the
// goroutine that applied the mutation.
type Controller struct {
	peer     models.Peer
	reversed bool
	loc      *time.Location

	initialLimit    int
	batchLimit      int
	grownBatchLimit int
	growThreshold   int
	aroundBudget    int

	store  Store
	bus    msgbus.Bus
	subID  string
	logger zerolog.Logger

	mu        sync.Mutex
	messages  []models.Message
	byID      map[int64]int // message id -> presentation index
	byGlobal  map[int64]int // global id -> presentation index
	sections  []DaySection
	gaps      []GapRange
	observer  Observer
	isLoading bool
	disposed  bool
	atBottom  bool

	minDate, maxDate               time.Time
	oldestLoadedID, newestLoadedID int64
	canLoadOlder, canLoadNewer     bool
}

// NewController creates a window controller for cfg.Peer and subscribes it
// to the update bus. The window is empty until LoadInitial runs.
func NewController(cfg Config, st Store, bus msgbus.Bus) (*Controller, error) {
	if cfg.Peer.IsZero() {
		return nil, errors.New("window: peer is required")
	}
	if st == nil {
		return nil, errors.New("window: store is required")
	}
	if bus == nil {
		return nil, errors.New("window: bus is required")
	}

	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = DefaultInitialLimit
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.GrownBatchLimit <= 0 {
		cfg.GrownBatchLimit = 2 * cfg.BatchLimit
	}
	if cfg.GrowThreshold <= 0 {
		cfg.GrowThreshold = defaultGrowThreshold
	}
	if cfg.AroundBudget <= 0 {
		cfg.AroundBudget = defaultAroundBudget
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	c := &Controller{
		peer:            cfg.Peer,
		reversed:        cfg.Reversed,
		loc:             cfg.Location,
		initialLimit:    cfg.InitialLimit,
		batchLimit:      cfg.BatchLimit,
		grownBatchLimit: cfg.GrownBatchLimit,
		growThreshold:   cfg.GrowThreshold,
		aroundBudget:    cfg.AroundBudget,
		store:           st,
		bus:             bus,
		subID:           fmt.Sprintf("window-%s-%s", cfg.Peer, uuid.NewString()[:8]),
		logger:          logging.WithPeer("window", cfg.Peer.String()),
		atBottom:        true,
	}

	if err := bus.Subscribe(c.subID, c.handleUpdate); err != nil {
		return nil, fmt.Errorf("window: failed to subscribe to update bus: %w", err)
	}
	return c, nil
}

// Observe registers the UI callback. Exactly one observer is expected;
// re-registering logs a warning and replaces the previous callback.
func (c *Controller) Observe(cb Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observer != nil {
		c.logger.Warn().Msg("observer already registered, replacing")
	}
	c.observer = cb
}

// Dispose detaches the controller from the bus and drops the observer.
// Safe to call multiple times.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.observer = nil
	c.mu.Unlock()

	// Outside the controller lock: bus dispatch holds the bus lock while
	// calling into us, so the reverse order here would deadlock.
	if err := c.bus.Unsubscribe(c.subID); err != nil {
		c.logger.Warn().Err(err).Msg("failed to unsubscribe from update bus")
	}
}

// SetAtBottom records whether the consumer is viewing the newest end, which
// decides how reload events are absorbed.
func (c *Controller) SetAtBottom(atBottom bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atBottom = atBottom
}

// SetInitialLimit adjusts the initial-load size, typically after a viewport
// resize.
func (c *Controller) SetInitialLimit(limit int) {
	if limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialLimit = limit
}

// LoadInitial populates the window with the newest messages in the
// conversation. On store failure the window keeps its previous contents.
func (c *Controller) LoadInitial(ctx context.Context) error {
	c.mu.Lock()
	change, err := c.loadNewestLocked(ctx, false)
	c.mu.Unlock()
	c.notify(change)
	return err
}

// loadNewestLocked fetches the newest initialLimit messages and replaces the
// window contents.
func (c *Controller) loadNewestLocked(ctx context.Context, animated bool) (*Change, error) {
	if c.disposed {
		return nil, ErrDisposed
	}

	batch, err := c.store.Query(ctx, c.peer, store.MessageQuery{
		Order: store.OrderDesc,
		Limit: c.initialLimit,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("initial load failed")
		return nil, fmt.Errorf("window: initial load: %w", err)
	}

	StableSort(batch, c.reversed)
	c.messages = batch
	c.commit(ctx)

	return &Change{Kind: ChangeKindReload, Animated: animated}, nil
}

// LoadBatch extends the window one page toward the requested edge, reading
// from the persisted store with the window's date bound as an inclusive
// cursor. Concurrent calls while a load is in flight are no-ops, as is an
// empty post-dedup result.
func (c *Controller) LoadBatch(ctx context.Context, dir LoadDirection) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.isLoading {
		c.mu.Unlock()
		return nil
	}
	if len(c.messages) == 0 {
		change, err := c.loadNewestLocked(ctx, false)
		c.mu.Unlock()
		c.notify(change)
		return err
	}
	c.isLoading = true
	change, err := c.loadBatchLocked(ctx, dir)
	c.isLoading = false
	c.mu.Unlock()
	c.notify(change)
	return err
}

func (c *Controller) loadBatchLocked(ctx context.Context, dir LoadDirection) (*Change, error) {
	limit := c.batchLimit
	if len(c.messages) > c.growThreshold {
		limit = c.grownBatchLimit
	}

	for {
		var cursor time.Time
		var q store.MessageQuery
		if dir == LoadOlder {
			cursor = c.minDate
			q = store.MessageQuery{BeforeTS: &cursor, Order: store.OrderDesc, Limit: limit}
		} else {
			cursor = c.maxDate
			q = store.MessageQuery{AfterTS: &cursor, Order: store.OrderAsc, Limit: limit}
		}

		batch, err := c.store.Query(ctx, c.peer, q)
		if err != nil {
			c.logger.Error().Err(err).Stringer("direction", dir).Msg("batch load failed")
			return nil, fmt.Errorf("window: batch load %s: %w", dir, err)
		}
		fetched := len(batch)

		StableSort(batch, c.reversed)
		batch = BatchDedupedAtCursor(batch, c.messages, cursor)
		if len(batch) == 0 {
			if fetched < limit {
				// Store exhausted past the cursor; the availability flags
				// stay as commit() last derived them from the store.
				return nil, nil
			}
			// A full page of cursor-timestamp duplicates: widen the page so
			// the next fetch reaches past the tie pileup.
			limit *= 2
			continue
		}

		// Loading toward the top of the presented order prepends; a reversed
		// window presents newest first, flipping which edge is the top.
		prepend := (dir == LoadOlder) != c.reversed
		c.messages = MergedMessages(c.messages, batch, prepend)
		c.commit(ctx)

		return &Change{
			Kind:     ChangeKindAdded,
			Messages: batch,
			Indices:  c.indicesOf(batch),
		}, nil
	}
}

// LoadAroundMessage recenters the window on targetID, used by jump-to-message
// and notification deep links. Returns false without touching the window if
// the target is not in the local store; callers fall back to a remote fetch.
func (c *Controller) LoadAroundMessage(ctx context.Context, targetID int64) (bool, error) {
	c.mu.Lock()
	found, change, err := c.loadAroundLocked(ctx, targetID)
	c.mu.Unlock()
	c.notify(change)
	return found, err
}

func (c *Controller) loadAroundLocked(ctx context.Context, targetID int64) (bool, *Change, error) {
	if c.disposed {
		return false, nil, ErrDisposed
	}

	targets, err := c.store.Query(ctx, c.peer, store.MessageQuery{ExactID: &targetID, Limit: 1})
	if err != nil {
		c.logger.Error().Err(err).Int64("target", targetID).Msg("recenter target fetch failed")
		return false, nil, fmt.Errorf("window: recenter: %w", err)
	}
	if len(targets) == 0 {
		return false, nil, nil
	}
	target := targets[0]

	beforeLimit := c.aroundBudget / 2
	if beforeLimit < minAroundSide {
		beforeLimit = minAroundSide
	}
	afterLimit := c.aroundBudget - c.aroundBudget/2
	if afterLimit < minAroundSide {
		afterLimit = minAroundSide
	}

	older, err := c.store.Query(ctx, c.peer, store.MessageQuery{
		BeforeTS: &target.Date, Order: store.OrderDesc, Limit: beforeLimit,
	})
	if err != nil {
		c.logger.Error().Err(err).Int64("target", targetID).Msg("recenter older fetch failed")
		return false, nil, fmt.Errorf("window: recenter: %w", err)
	}
	newer, err := c.store.Query(ctx, c.peer, store.MessageQuery{
		AfterTS: &target.Date, Order: store.OrderAsc, Limit: afterLimit,
	})
	if err != nil {
		c.logger.Error().Err(err).Int64("target", targetID).Msg("recenter newer fetch failed")
		return false, nil, fmt.Errorf("window: recenter: %w", err)
	}
	if ctx.Err() != nil {
		// View may have been disposed mid-flight; discard results.
		return false, nil, ctx.Err()
	}

	// Both side fetches use inclusive timestamp bounds, so the target and
	// its timestamp ties can appear in either; collapse by id.
	seen := make(map[int64]struct{}, len(older)+len(newer)+1)
	combined := make([]models.Message, 0, len(older)+len(newer)+1)
	for _, part := range [][]models.Message{{target}, older, newer} {
		for _, msg := range part {
			if _, dup := seen[msg.MessageID]; dup {
				continue
			}
			seen[msg.MessageID] = struct{}{}
			combined = append(combined, msg)
		}
	}

	StableSort(combined, c.reversed)
	c.messages = combined
	c.commit(ctx)

	_, found := c.byID[targetID]
	return found, &Change{Kind: ChangeKindReload}, nil
}

// handleUpdate is the bus subscription entry point. It filters by peer and
// applies the mutation under the controller lock.
func (c *Controller) handleUpdate(u models.Update) {
	if u.Peer != c.peer {
		return
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	var change *Change
	switch u.Kind {
	case models.UpdateKindAdd:
		change = c.applyAddLocked(u.Messages)
	case models.UpdateKindUpdate:
		if u.Message != nil {
			change = c.applyUpdateLocked(*u.Message, u.Animated)
		}
	case models.UpdateKindDelete:
		change = c.applyDeleteLocked(u.MessageIDs)
	case models.UpdateKindReload:
		change = c.applyReloadLocked(u.Animated)
	}
	c.mu.Unlock()
	c.notify(change)
}

// applyAddLocked inserts newly arrived messages, ignoring ids the window
// already holds so duplicate delivery is idempotent.
func (c *Controller) applyAddLocked(msgs []models.Message) *Change {
	fresh := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, dup := c.byID[msg.MessageID]; dup {
			continue
		}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		return nil
	}

	StableSort(fresh, c.reversed)
	// New arrivals are usually the newest messages: head of a reversed
	// window, tail otherwise. A re-sort afterwards folds in the exceptions
	// (backfilled history) without disturbing equal-key order.
	c.messages = MergedMessages(c.messages, fresh, c.reversed)
	StableSort(c.messages, c.reversed)
	c.commit(context.Background())

	return &Change{
		Kind:     ChangeKindAdded,
		Messages: fresh,
		Indices:  c.indicesOf(fresh),
	}
}

// applyUpdateLocked mutates one message in place, keyed by global id. An
// update for a message outside the window is dropped.
func (c *Controller) applyUpdateLocked(msg models.Message, animated bool) *Change {
	if msg.GlobalID == 0 {
		return nil
	}
	idx, ok := c.byGlobal[msg.GlobalID]
	if !ok {
		c.logger.Debug().Int64("global_id", msg.GlobalID).Msg("update outside window, dropped")
		return nil
	}

	// Identity and ordering fields stay; only mutable fields move.
	existing := &c.messages[idx]
	existing.Text = msg.Text
	existing.Status = msg.Status
	existing.EditDate = msg.EditDate
	c.commit(context.Background())

	return &Change{
		Kind:     ChangeKindUpdated,
		Messages: []models.Message{*existing},
		Indices:  []int{idx},
		Animated: animated,
	}
}

// applyDeleteLocked removes messages by per-conversation id, reporting their
// pre-removal indices.
func (c *Controller) applyDeleteLocked(ids []int64) *Change {
	var indices []int
	var globalIDs []int64
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		idx, ok := c.byID[id]
		if !ok {
			continue
		}
		drop[id] = struct{}{}
		indices = append(indices, idx)
		globalIDs = append(globalIDs, c.messages[idx].GlobalID)
	}
	if len(drop) == 0 {
		return nil
	}

	kept := c.messages[:0]
	for _, msg := range c.messages {
		if _, gone := drop[msg.MessageID]; gone {
			continue
		}
		kept = append(kept, msg)
	}
	c.messages = kept
	c.commit(context.Background())

	return &Change{
		Kind:      ChangeKindDeleted,
		GlobalIDs: globalIDs,
		Indices:   indices,
	}
}

// applyReloadLocked refreshes the window after a wholesale history change.
// At the bottom it re-runs the initial load so new activity shows; elsewhere
// it refetches only the current [minDate, maxDate] span, trading a perfectly
// fresh tail for keeping the user's scroll position at bounded cost.
func (c *Controller) applyReloadLocked(animated bool) *Change {
	ctx := context.Background()

	if c.atBottom || len(c.messages) == 0 {
		change, err := c.loadNewestLocked(ctx, animated)
		if err != nil {
			return nil
		}
		return change
	}

	minDate, maxDate := c.minDate, c.maxDate
	limit := len(c.messages) + c.batchLimit
	batch, err := c.store.Query(ctx, c.peer, store.MessageQuery{
		AfterTS:  &minDate,
		BeforeTS: &maxDate,
		Order:    store.OrderDesc,
		Limit:    limit,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("bounded reload failed")
		return nil
	}

	StableSort(batch, c.reversed)
	c.messages = batch
	c.commit(ctx)

	return &Change{Kind: ChangeKindReload, Animated: animated}
}

// commit is the single atomic recomputation step run at the end of every
// mutating operation: index maps, date and id bounds, local-load flags and
// day sections all derive from the message slice here.
func (c *Controller) commit(ctx context.Context) {
	c.byID = make(map[int64]int, len(c.messages))
	c.byGlobal = make(map[int64]int, len(c.messages))
	for i := range c.messages {
		c.byID[c.messages[i].MessageID] = i
		if gid := c.messages[i].GlobalID; gid != 0 {
			c.byGlobal[gid] = i
		}
	}

	if len(c.messages) == 0 {
		c.minDate, c.maxDate = time.Time{}, time.Time{}
		c.oldestLoadedID, c.newestLoadedID = 0, 0
		c.canLoadOlder, c.canLoadNewer = false, false
		c.sections = nil
		return
	}

	first := c.messages[0]
	c.minDate, c.maxDate = first.Date, first.Date
	c.oldestLoadedID, c.newestLoadedID = first.MessageID, first.MessageID
	for i := 1; i < len(c.messages); i++ {
		msg := &c.messages[i]
		if msg.Date.Before(c.minDate) {
			c.minDate = msg.Date
		}
		if msg.Date.After(c.maxDate) {
			c.maxDate = msg.Date
		}
		if msg.MessageID < c.oldestLoadedID {
			c.oldestLoadedID = msg.MessageID
		}
		if msg.MessageID > c.newestLoadedID {
			c.newestLoadedID = msg.MessageID
		}
	}

	if older, err := c.store.ExistsBeyond(ctx, c.peer, c.oldestLoadedID, false); err != nil {
		c.logger.Warn().Err(err).Msg("older-availability probe failed")
	} else {
		c.canLoadOlder = older
	}
	if newer, err := c.store.ExistsBeyond(ctx, c.peer, c.newestLoadedID, true); err != nil {
		c.logger.Warn().Err(err).Msg("newer-availability probe failed")
	} else {
		c.canLoadNewer = newer
	}

	c.sections = Sections(c.messages, c.loc)
}

// indicesOf maps messages to their committed presentation indices,
// preserving input order.
func (c *Controller) indicesOf(msgs []models.Message) []int {
	indices := make([]int, 0, len(msgs))
	for i := range msgs {
		if idx, ok := c.byID[msgs[i].MessageID]; ok {
			indices = append(indices, idx)
		}
	}
	return indices
}

// notify delivers a change-set to the observer outside the controller lock.
func (c *Controller) notify(change *Change) {
	if change == nil {
		return
	}
	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(*change)
	}
}

// AddGapRange records [start, end] as believed-incomplete, merging it into
// the existing set.
func (c *Controller) AddGapRange(start, end int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gaps = MergedGapRanges(append(c.gaps, NewGapRange(start, end)))
}

// SetGapRanges replaces the gap set with the canonical merge of ranges.
func (c *Controller) SetGapRanges(ranges []GapRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gaps = MergedGapRanges(ranges)
}

// ClearGapRanges drops all recorded gaps.
func (c *Controller) ClearGapRanges() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gaps = nil
}

// GapRanges returns a copy of the current gap set.
func (c *Controller) GapRanges() []GapRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]GapRange, len(c.gaps))
	copy(out, c.gaps)
	return out
}

// Peer returns the conversation this window materializes.
func (c *Controller) Peer() models.Peer {
	return c.peer
}

// Reversed reports whether presentation order is newest-first.
func (c *Controller) Reversed() bool {
	return c.reversed
}

// Messages returns a copy of the window contents in presentation order.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the window.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Sections returns the window's day sections in presentation order.
func (c *Controller) Sections() []DaySection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DaySection, len(c.sections))
	copy(out, c.sections)
	return out
}

// Bounds returns the materialized timestamp span. Zero times mean an empty
// window.
func (c *Controller) Bounds() (minDate, maxDate time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minDate, c.maxDate
}

// IDBounds returns the oldest and newest loaded per-conversation ids.
func (c *Controller) IDBounds() (oldest, newest int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oldestLoadedID, c.newestLoadedID
}

// CanLoadOlderFromLocal reports whether the store holds messages older than
// the window.
func (c *Controller) CanLoadOlderFromLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canLoadOlder
}

// CanLoadNewerFromLocal reports whether the store holds messages newer than
// the window.
func (c *Controller) CanLoadNewerFromLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canLoadNewer
}

// AtBottom reports whether the consumer is viewing the newest end.
func (c *Controller) AtBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atBottom
}
