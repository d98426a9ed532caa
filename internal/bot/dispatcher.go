package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"matrixbot/internal/domain"
	"matrixbot/internal/metrics"
)

const defaultMaxConcurrent = 5

// Dispatcher consumes inbound events, matches them against the registry,
// and runs the matched command with at-most-once semantics backed by the
// dedup ledger.
type Dispatcher struct {
	registry *Registry
	ledger   domain.Ledger
	client   domain.Client
	mappings domain.MappingStore
	index    domain.Index
	resolver domain.Resolver
	images   domain.ImageRouter
	linkHost string
	logger   *slog.Logger

	maxConcurrent int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// DispatcherConfig holds the long-lived services a dispatcher hands to
// each command invocation.
type DispatcherConfig struct {
	Registry      *Registry
	Ledger        domain.Ledger
	Client        domain.Client
	Mappings      domain.MappingStore
	Index         domain.Index
	Resolver      domain.Resolver
	Images        domain.ImageRouter
	LinkHost      string
	Logger        *slog.Logger
	MaxConcurrent int
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:      cfg.Registry,
		ledger:        cfg.Ledger,
		client:        cfg.Client,
		mappings:      cfg.Mappings,
		index:         cfg.Index,
		resolver:      cfg.Resolver,
		images:        cfg.Images,
		linkHost:      cfg.LinkHost,
		logger:        cfg.Logger,
		maxConcurrent: cfg.MaxConcurrent,
		inflight:      make(map[string]struct{}),
	}
}

// Run consumes events from the feed until it closes or the context ends.
// Each event is handled on its own goroutine with bounded concurrency, so
// one slow command does not starve delivery of unrelated events.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan domain.Event) {
	d.logger.Info("dispatcher started", "concurrency", d.maxConcurrent, "triggers", len(d.registry.Triggers()))

	sem := make(chan struct{}, d.maxConcurrent)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("dispatcher stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				wg.Wait()
				d.logger.Info("inbound feed closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(ev domain.Event) {
				defer wg.Done()
				defer func() { <-sem }()
				d.Handle(ctx, ev)
			}(ev)
		}
	}
}

// Handle processes one inbound event: parse the trigger, short-circuit on
// the dedup ledger, execute the command with failure isolation, record
// completion. Safe to call concurrently; concurrent deliveries of the
// same event identifier collapse to a single execution.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.Event) {
	body := strings.TrimSpace(ev.Body)
	if body == "" {
		return
	}

	metrics.EventsTotal.Inc()

	trigger, args := splitCommand(body)
	cmd := d.registry.Lookup(trigger)
	if cmd == nil {
		// Ordinary chat. No ledger record: non-commands must never
		// consume a ledger slot.
		return
	}

	// In-process guard against overlapping deliveries of one event; the
	// ledger's atomic insert covers what this cannot see.
	if !d.begin(ev.EventID) {
		return
	}
	defer d.end(ev.EventID)

	handled, err := d.ledger.IsHandled(ctx, ev.EventID)
	if err != nil {
		// The event stays unhandled; losing it silently would defeat
		// the at-most-once observability the ledger provides.
		d.logger.Error("dedup ledger unavailable, event left unhandled",
			"event", ev.EventID, "trigger", trigger, "err", err)
		return
	}
	if handled {
		metrics.EventsDeduped.Inc()
		return
	}

	d.logger.Info("executing command", "trigger", trigger, "sender", ev.SenderID, "room", ev.RoomID)

	inv := &domain.Invocation{
		Client:   d.client,
		Mappings: d.mappings,
		Index:    d.index,
		Resolver: d.resolver,
		Images:   d.images,
		RoomID:   ev.RoomID,
		SenderID: ev.SenderID,
		Args:     args,
		LinkHost: d.linkHost,
	}

	if err := d.invoke(ctx, cmd, inv); err != nil {
		metrics.CommandErrors.Inc()
		d.logger.Error("command failed", "trigger", trigger, "event", ev.EventID, "err", err)
		if _, sendErr := d.client.SendMessage(ctx, ev.RoomID, fmt.Sprintf("Error: %s", err)); sendErr != nil {
			d.logger.Warn("could not report command failure", "room", ev.RoomID, "err", sendErr)
		}
	}

	// Success and isolated failure both consume the event: a replay of a
	// failing command is indistinguishable from a duplicate.
	if _, err := d.ledger.MarkHandled(ctx, ev.EventID); err != nil {
		d.logger.Error("could not record handled event", "event", ev.EventID, "err", err)
	}
}

// invoke runs the command, converting panics into errors so a buggy
// handler cannot take down the event loop.
func (d *Dispatcher) invoke(ctx context.Context, cmd domain.Command, inv *domain.Invocation) (err error) {
	metrics.CommandsActive.Inc()
	start := time.Now()
	defer func() {
		metrics.CommandsActive.Dec()
		metrics.CommandLatency.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = fmt.Errorf("command panic: %v", r)
		}
	}()
	return cmd.Execute(ctx, inv)
}

func (d *Dispatcher) begin(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[eventID]; busy {
		return false
	}
	d.inflight[eventID] = struct{}{}
	return true
}

func (d *Dispatcher) end(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, eventID)
}

// splitCommand splits a trimmed body into its leading trigger token and
// the argument text after the first space. Internal whitespace in the
// arguments is preserved verbatim.
func splitCommand(body string) (trigger, args string) {
	parts := strings.SplitN(body, " ", 2)
	trigger = parts[0]
	if len(parts) > 1 {
		args = parts[1]
	}
	return trigger, args
}
