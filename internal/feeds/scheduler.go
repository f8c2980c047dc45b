package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ValueSetter pushes generated values into the graph.
// Satisfied by the editor (avoids import cycle).
type ValueSetter interface {
	SetValue(ctx context.Context, nodeID string, value float64) error
}

// Feed is the public snapshot of one registered feed.
type Feed struct {
	ID        string     `json:"id"`
	NodeID    string     `json:"node_id"`
	Schedule  string     `json:"schedule"`
	Source    SourceSpec `json:"source"`
	LastValue float64    `json:"last_value,omitempty"`
	LastRunAt time.Time  `json:"last_run_at,omitzero"`
	NextRunAt time.Time  `json:"next_run_at,omitzero"`
	Ticks     int        `json:"ticks"`
}

// feedState pairs the public snapshot with its parsed schedule and
// stateful generator.
type feedState struct {
	Feed
	schedule cron.Schedule
	source   Source
}

// Scheduler drives registered feeds: on each due tick it pulls the next
// value from the feed's source and pushes it into the target input node
// through the editor, exactly as a user edit would.
type Scheduler struct {
	setter ValueSetter
	hub    streaming.EventHub
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	feedsMu sync.Mutex
	feeds   map[string]*feedState
}

// NewScheduler creates a feed scheduler. A nil hub disables event
// publication.
func NewScheduler(setter ValueSetter, hub streaming.EventHub, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		setter: setter,
		hub:    hub,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger,
		feeds:  make(map[string]*feedState),
	}
}

// Add registers a feed bound to an input node. The schedule accepts
// standard cron expressions with an optional leading seconds field and
// @every descriptors.
func (s *Scheduler) Add(nodeID, cronExpr string, spec SourceSpec) (Feed, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return Feed{}, schema.NewErrorf(schema.ErrCodeFeed,
			"parse cron expression %q: %v", cronExpr, err).WithNode(nodeID)
	}
	source, err := newSource(spec)
	if err != nil {
		return Feed{}, err
	}

	state := &feedState{
		Feed: Feed{
			ID:        uuid.NewString(),
			NodeID:    nodeID,
			Schedule:  cronExpr,
			Source:    spec,
			NextRunAt: schedule.Next(time.Now().UTC()),
		},
		schedule: schedule,
		source:   source,
	}

	s.feedsMu.Lock()
	s.feeds[state.ID] = state
	s.feedsMu.Unlock()

	s.logger.Info("feed added",
		slog.String("feed_id", state.ID),
		slog.String("node_id", nodeID),
		slog.String("schedule", cronExpr),
		slog.String("source", spec.Type),
	)
	return state.Feed, nil
}

// Remove unregisters a feed.
func (s *Scheduler) Remove(feedID string) error {
	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()

	if _, ok := s.feeds[feedID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "feed %s not found", feedID)
	}
	delete(s.feeds, feedID)
	s.logger.Info("feed removed", slog.String("feed_id", feedID))
	return nil
}

// List returns snapshots of all registered feeds, ordered by ID.
func (s *Scheduler) List() []Feed {
	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()

	out := make([]Feed, 0, len(s.feeds))
	for _, state := range s.feeds {
		out = append(out, state.Feed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start launches the background tick loop with a 1s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("feed scheduler already started")
	}

	feedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(feedCtx)
	s.logger.Info("feed scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick runs every due feed once. Exported so tests can drive the clock
// directly instead of sleeping through the ticker.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	for _, state := range s.due(now) {
		s.run(ctx, state, now)
	}
}

// due collects feeds whose next run is at or before now.
func (s *Scheduler) due(now time.Time) []*feedState {
	s.feedsMu.Lock()
	defer s.feedsMu.Unlock()

	out := make([]*feedState, 0, len(s.feeds))
	for _, state := range s.feeds {
		if !state.NextRunAt.After(now) {
			out = append(out, state)
		}
	}
	return out
}

// run pushes one generated value into the feed's target node. A feed
// whose node has disappeared is removed rather than left failing every
// tick.
func (s *Scheduler) run(ctx context.Context, state *feedState, now time.Time) {
	value := state.source.Next(now)

	if err := s.setter.SetValue(ctx, state.NodeID, value); err != nil {
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) && flowErr.Code == schema.ErrCodeNotFound {
			s.logger.Warn("feed target vanished, removing feed",
				slog.String("feed_id", state.ID),
				slog.String("node_id", state.NodeID),
			)
			_ = s.Remove(state.ID)
			return
		}
		s.logger.Error("feed tick failed",
			slog.String("feed_id", state.ID),
			slog.String("node_id", state.NodeID),
			slog.String("error", err.Error()),
		)
	} else {
		s.feedsMu.Lock()
		state.LastValue = value
		state.LastRunAt = now
		state.Ticks++
		s.feedsMu.Unlock()

		s.publish(ctx, state, value)
	}

	s.feedsMu.Lock()
	state.NextRunAt = state.schedule.Next(now)
	s.feedsMu.Unlock()
}

func (s *Scheduler) publish(ctx context.Context, state *feedState, value float64) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(ctx, streaming.StreamEvent{
		NodeID:    state.NodeID,
		EventType: schema.EventFeedTicked,
		Payload: map[string]any{
			"feed_id": state.ID,
			"value":   value,
		},
	})
}

// Stop gracefully shuts down the tick loop. Registered feeds survive a
// stop/start cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("feed scheduler stopped")
	return nil
}
