package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/msgbus"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/window"
)

// Fetcher is the remote history surface the gateway needs. *Client satisfies
// it.
type Fetcher interface {
	FetchMessages(ctx context.Context, peer models.Peer, cursorID int64, limit int) (FetchResult, error)
}

// ErrUnknownUpdateKind is returned by Apply for a push kind the gateway does
// not recognize.
var ErrUnknownUpdateKind = errors.New("unknown update kind")

// Gateway lands server updates in the local store and then publishes them on
// the bus. The order is load-bearing: subscribers re-query the store when
// they receive an event, so the write must already be visible.
type Gateway struct {
	fetcher Fetcher
	repo    *store.MessageRepository
	bus     msgbus.Bus
	logger  zerolog.Logger
}

// NewGateway creates a gateway over the given store and bus. fetcher may be
// nil if Backfill is never used.
func NewGateway(fetcher Fetcher, repo *store.MessageRepository, bus msgbus.Bus) *Gateway {
	return &Gateway{
		fetcher: fetcher,
		repo:    repo,
		bus:     bus,
		logger:  logging.Component("gateway"),
	}
}

// Run applies updates from the channel until it closes or ctx is cancelled.
// Apply failures are logged and skipped; a persistent store error should not
// stall the stream.
func (g *Gateway) Run(ctx context.Context, updates <-chan ServerUpdate) {
	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if err := g.Apply(ctx, upd); err != nil {
				g.logger.Error().Err(err).
					Str("kind", upd.Kind).
					Str("peer", upd.Peer.String()).
					Msg("failed to apply server update")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Apply persists one server update and publishes the matching bus event.
func (g *Gateway) Apply(ctx context.Context, upd ServerUpdate) error {
	switch upd.Kind {
	case PushNewMessage:
		if len(upd.Messages) == 0 {
			return nil
		}
		if err := g.repo.Save(ctx, upd.Messages...); err != nil {
			return fmt.Errorf("failed to save new messages: %w", err)
		}
		g.bus.Added(upd.Messages, upd.Peer)
		return nil

	case PushEditMessage:
		if upd.Message == nil {
			return nil
		}
		msg := *upd.Message
		editDate := msg.Date
		if msg.EditDate != nil {
			editDate = *msg.EditDate
		}
		err := g.repo.ApplyEdit(ctx, upd.Peer, msg.MessageID, msg.Text, editDate)
		if errors.Is(err, store.ErrMessageNotFound) {
			// Edit of a message we never stored: insert it instead.
			err = g.repo.Save(ctx, msg)
		}
		if err != nil {
			return fmt.Errorf("failed to apply edit: %w", err)
		}
		g.bus.Updated(msg, upd.Peer, true)
		return nil

	case PushDeleteMessages:
		if len(upd.MessageIDs) == 0 {
			return nil
		}
		if _, err := g.repo.Delete(ctx, upd.Peer, upd.MessageIDs...); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		g.bus.Deleted(upd.MessageIDs, upd.Peer)
		return nil

	case PushHistoryInvalidated:
		g.bus.Reload(upd.Peer, false)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownUpdateKind, upd.Kind)
	}
}

// Backfill pages remote history over a gap, saving each page and announcing
// it on the bus. It pages descending from the gap's upper edge and stops once
// the page reaches below the gap's start, the server reports no more, or
// limit messages have been fetched. Returns the number of messages saved.
func (g *Gateway) Backfill(ctx context.Context, peer models.Peer, gap window.GapRange, limit int) (int, error) {
	if g.fetcher == nil {
		return 0, errors.New("gateway has no fetcher")
	}
	if limit <= 0 {
		limit = 200
	}

	// An open-ended gap starts from the newest remote message.
	cursor := int64(0)
	if !gap.OpenEnded() {
		// CursorID is exclusive; include the edge message itself.
		cursor = gap.End + 1
	}

	const pageSize = 100
	saved := 0
	for saved < limit {
		size := pageSize
		if remaining := limit - saved; remaining < size {
			size = remaining
		}

		res, err := g.fetcher.FetchMessages(ctx, peer, cursor, size)
		if err != nil {
			return saved, fmt.Errorf("backfill fetch failed: %w", err)
		}
		if len(res.Messages) == 0 {
			break
		}

		page := make([]models.Message, 0, len(res.Messages))
		done := false
		for _, msg := range res.Messages {
			if msg.MessageID < gap.Start {
				done = true
				continue
			}
			page = append(page, msg)
		}

		if len(page) > 0 {
			if err := g.repo.Save(ctx, page...); err != nil {
				return saved, fmt.Errorf("backfill save failed: %w", err)
			}
			g.bus.Added(page, peer)
			saved += len(page)
		}

		if done || !res.HasMore {
			break
		}
		cursor = res.Messages[len(res.Messages)-1].MessageID
	}

	g.logger.Debug().
		Str("peer", peer.String()).
		Int("saved", saved).
		Msg("backfill finished")
	return saved, nil
}
