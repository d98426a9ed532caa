package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"matrixbot/internal/matrix"
	"matrixbot/internal/metrics"
)

// directoryClient is the slice of the transport the auto-join worker needs.
type directoryClient interface {
	JoinedRooms(ctx context.Context) ([]string, error)
	PublicRooms(ctx context.Context, since string) ([]matrix.PublicRoom, string, error)
}

// AutoJoinWorker scans the public room directory once per run and joins
// public rooms the bot is not yet in. It shares the session and resolver
// with the dispatcher but owns no dispatch state; every failure inside a
// run is logged and the scan moves on.
type AutoJoinWorker struct {
	client     directoryClient
	resolver   *RoomResolver
	limiter    *RateLimiter
	pageLimit  int
	startDelay time.Duration
	logger     *slog.Logger
}

type AutoJoinConfig struct {
	Client         directoryClient
	Resolver       *RoomResolver
	PageLimit      int
	StartDelay     time.Duration
	JoinsPerMinute float64
	JoinBurst      int
	Logger         *slog.Logger
}

func NewAutoJoinWorker(cfg AutoJoinConfig) *AutoJoinWorker {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AutoJoinWorker{
		client:     cfg.Client,
		resolver:   cfg.Resolver,
		limiter:    NewRateLimiter(cfg.JoinBurst, cfg.JoinsPerMinute),
		pageLimit:  cfg.PageLimit,
		startDelay: cfg.StartDelay,
		logger:     cfg.Logger,
	}
}

// Run executes one bounded scan after the start delay and returns when it
// completes or the context ends. The supervisor logs the returned error;
// an auto-join failure never terminates the process.
func (w *AutoJoinWorker) Run(ctx context.Context) error {
	if w.startDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.startDelay):
		}
	}

	joined := make(map[string]struct{})
	if rooms, err := w.client.JoinedRooms(ctx); err != nil {
		w.logger.Warn("auto-join: could not fetch joined rooms", "err", err)
	} else {
		for _, id := range rooms {
			joined[id] = struct{}{}
		}
	}

	w.logger.Info("auto-join: starting public room scan", "already_joined", len(joined))

	discovered := 0
	newlyJoined := 0
	since := ""

	for page := 0; page < w.pageLimit; page++ {
		chunk, next, err := w.client.PublicRooms(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("auto-join: public room page failed", "page", page, "err", err)
			break
		}

		for _, room := range chunk {
			if room.RoomID == "" {
				continue
			}
			if room.JoinRule != "" && !strings.EqualFold(room.JoinRule, "public") {
				continue
			}
			discovered++
			if _, ok := joined[room.RoomID]; ok {
				continue
			}

			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			if _, err := w.resolver.Resolve(ctx, room.RoomID); err != nil {
				w.logger.Warn("auto-join: join failed", "room", room.RoomID, "err", err)
				continue
			}
			joined[room.RoomID] = struct{}{}
			newlyJoined++
			metrics.RoomsJoined.Inc()
			w.logger.Info("auto-join: joined room", "room", room.RoomID)
		}

		if next == "" {
			break
		}
		since = next
	}

	w.logger.Info("auto-join complete",
		"discovered", discovered,
		"joined_now", newlyJoined,
		"total_joined", len(joined),
	)
	return nil
}
