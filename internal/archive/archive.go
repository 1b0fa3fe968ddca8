package archive

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

// Archive composes the optional snapshot store and result repository
// behind one persistence surface.
type Archive struct {
	store *SnapshotStore
	repo  *Repository
}

// New wires whichever stores the configuration enables. Both URLs
// empty yields a nil archive, which callers treat as "no persistence".
func New(redisURL, databaseURL string) (*Archive, error) {
	a := &Archive{}
	if redisURL != "" {
		store, err := NewSnapshotStore(redisURL)
		if err != nil {
			return nil, err
		}
		a.store = store
		obslog.L().Info("archive_snapshot_store_ready")
	}
	if databaseURL != "" {
		repo, err := NewRepository(databaseURL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.repo = repo
		obslog.L().Info("archive_repository_ready")
	}
	if a.store == nil && a.repo == nil {
		return nil, nil
	}
	return a, nil
}

func (a *Archive) SaveSnapshot(ctx context.Context, st gamedto.GameState) error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.SaveSnapshot(ctx, st)
}

func (a *Archive) SaveResult(ctx context.Context, rec gamedto.GameRecord) error {
	if a == nil || a.repo == nil {
		return nil
	}
	return a.repo.SaveResult(ctx, rec)
}

// RecentGames proxies to the repository when present.
func (a *Archive) RecentGames(ctx context.Context, limit int) ([]gamedto.GameRecord, error) {
	if a == nil || a.repo == nil {
		return nil, nil
	}
	return a.repo.RecentGames(ctx, limit)
}

func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		obslog.L().Warn("archive_close_error", zap.Error(firstErr))
	}
	return firstErr
}
