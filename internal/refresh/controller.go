// Package refresh owns the full-recompute lifecycle of the canonical row set:
// load source snapshots, derive rows, and atomically replace the published
// snapshot. A refresh either publishes a complete row set or leaves the
// previous one untouched; readers never observe a partial state.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/materialize"
	"github.com/cryodata/glacier-attrs-etl/internal/observability"
	"github.com/cryodata/glacier-attrs-etl/internal/spatial"
)

// ErrRefreshInFlight rejects a refresh requested while another is still
// recomputing. Requests are rejected, never queued silently.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// State is the controller's position in the Stale → Refreshing → Published
// lifecycle.
type State int32

const (
	StateStale State = iota
	StateRefreshing
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateStale:
		return "stale"
	case StateRefreshing:
		return "refreshing"
	case StatePublished:
		return "published"
	default:
		return "invalid"
	}
}

// Source supplies read-only snapshots of the glacier and region tables.
type Source interface {
	Glaciers(ctx context.Context) ([]domain.Glacier, error)
	Regions(ctx context.Context, spec domain.JoinSpec) ([]domain.Region, error)
}

// Publisher persists a completed snapshot to durable storage. Publish must be
// all-or-nothing: a failure leaves the previously persisted rows in place.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot, specs []domain.JoinSpec) error
}

// Notifier announces a completed refresh to downstream consumers.
// Notification failures are logged, not fatal; the snapshot is already
// published by the time the notifier runs.
type Notifier interface {
	RefreshCompleted(ctx context.Context, res Result) error
}

// Result summarizes a successful refresh.
type Result struct {
	RunID    uuid.UUID
	Rows     int
	BuiltAt  time.Time
	Duration time.Duration
}

// Controller serializes refreshes and owns the published snapshot pointer.
type Controller struct {
	source    Source
	publisher Publisher // nil when running without durable storage
	notifier  Notifier  // nil when notifications are disabled
	specs     []domain.JoinSpec
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	state     atomic.Int32
	published atomic.Pointer[Snapshot]
}

// New creates a Controller. publisher and notifier may be nil.
func New(source Source, publisher Publisher, notifier Notifier, specs []domain.JoinSpec,
	logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Controller {
	return &Controller{
		source:    source,
		publisher: publisher,
		notifier:  notifier,
		specs:     specs,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}
}

// Published returns the last published snapshot, or nil before the first
// successful refresh. The returned snapshot is immutable.
func (c *Controller) Published() *Snapshot {
	return c.published.Load()
}

// State reports the controller's lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// CheckReadiness returns nil once a snapshot has been published.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if c.published.Load() == nil {
		return errors.New("no snapshot published yet")
	}
	return nil
}

// Refresh recomputes the canonical row set and publishes it atomically.
// At most one refresh runs at a time; a concurrent request fails fast with
// ErrRefreshInFlight. On any error the previous snapshot stays published and
// the state reverts. Re-running against unchanged inputs reproduces an
// identical row set.
func (c *Controller) Refresh(ctx context.Context) (Result, error) {
	if !c.state.CompareAndSwap(int32(StateStale), int32(StateRefreshing)) &&
		!c.state.CompareAndSwap(int32(StatePublished), int32(StateRefreshing)) {
		c.metrics.RefreshRuns.WithLabelValues("conflict").Inc()
		return Result{}, ErrRefreshInFlight
	}

	c.metrics.RefreshInFlight.Set(1)
	defer c.metrics.RefreshInFlight.Set(0)

	runID := uuid.New()
	start := c.clock.Now()
	logger := c.logger.With("run_id", runID)
	logger.Info("refresh started", "families", len(c.specs))

	snap, err := c.run(ctx, runID)
	if err != nil {
		// Revert: the previous snapshot, if any, remains published.
		if c.published.Load() != nil {
			c.state.Store(int32(StatePublished))
		} else {
			c.state.Store(int32(StateStale))
		}
		outcome := "error"
		if errors.Is(err, ErrRefreshInFlight) {
			// Another process holds the publish lock.
			outcome = "conflict"
		}
		c.metrics.RefreshRuns.WithLabelValues(outcome).Inc()
		logger.Error("refresh failed", "error", err, "state", c.State().String())
		return Result{}, err
	}

	c.state.Store(int32(StatePublished))

	res := Result{
		RunID:    runID,
		Rows:     snap.Len(),
		BuiltAt:  snap.BuiltAt,
		Duration: c.clock.Since(start),
	}

	c.metrics.RefreshRuns.WithLabelValues("success").Inc()
	c.metrics.RefreshDuration.Observe(res.Duration.Seconds())
	c.observeSnapshot(snap)
	logger.Info("refresh published", "rows", res.Rows, "duration", res.Duration)

	if c.notifier != nil {
		if err := c.notifier.RefreshCompleted(ctx, res); err != nil {
			logger.Warn("refresh notification failed", "error", err)
		}
	}

	return res, nil
}

// run computes a snapshot against a private working copy. Nothing it does is
// visible to readers until the published pointer is swapped at the end.
func (c *Controller) run(ctx context.Context, runID uuid.UUID) (*Snapshot, error) {
	glaciers, err := c.source.Glaciers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load glaciers: %w", err)
	}
	if len(glaciers) == 0 {
		return nil, &domain.EmptyInputError{Source: "glaciers"}
	}

	regionsByFamily := make(map[string][]domain.Region, len(c.specs))
	families := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		regions, err := c.source.Regions(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("load regions for family %q: %w", spec.Family, err)
		}
		if len(regions) == 0 {
			return nil, &domain.EmptyInputError{Source: spec.Table}
		}
		regionsByFamily[spec.Family] = regions
		families = append(families, spec.Family)
	}

	resolver := spatial.Build(regionsByFamily)
	rows, err := materialize.Rows(glaciers, resolver, families)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(runID, c.clock.Now(), rows)

	// Last cancellation point: aborting here has no visible effect. The swap
	// below is the commit point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, snap, c.specs); err != nil {
			return nil, fmt.Errorf("publish snapshot: %w", err)
		}
	}

	c.published.Store(snap)
	return snap, nil
}

func (c *Controller) observeSnapshot(snap *Snapshot) {
	c.metrics.SnapshotRows.Set(float64(snap.Len()))
	c.metrics.SnapshotBuiltAt.Set(float64(snap.BuiltAt.Unix()))

	unknown := 0
	unassigned := make(map[string]int, len(c.specs))
	for _, row := range snap.Rows {
		if row.TerminusType == nil {
			unknown++
		}
		for _, spec := range c.specs {
			if _, ok := row.Regions[spec.Family]; !ok {
				unassigned[spec.Family]++
			}
		}
	}
	c.metrics.RowsUnknownClass.Set(float64(unknown))
	for _, spec := range c.specs {
		c.metrics.RowsUnassigned.WithLabelValues(spec.Family).Set(float64(unassigned[spec.Family]))
	}
}
