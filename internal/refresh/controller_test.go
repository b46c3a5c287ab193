package refresh_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/observability"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

// --- mocks ---

type mockSource struct {
	mu       sync.Mutex
	glaciers []domain.Glacier
	regions  map[string][]domain.Region
	err      error
	block    chan struct{} // when set, Glaciers waits for close (or ctx)
}

func (m *mockSource) Glaciers(ctx context.Context) ([]domain.Glacier, error) {
	if m.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.block:
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.glaciers, nil
}

func (m *mockSource) Regions(_ context.Context, spec domain.JoinSpec) ([]domain.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regions[spec.Family], nil
}

func (m *mockSource) setRegions(family string, regions []domain.Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[family] = regions
}

type mockPublisher struct {
	mu        sync.Mutex
	err       error
	published []*refresh.Snapshot
}

func (m *mockPublisher) Publish(_ context.Context, snap *refresh.Snapshot, _ []domain.JoinSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, snap)
	return nil
}

type mockNotifier struct {
	mu      sync.Mutex
	err     error
	results []refresh.Result
}

func (m *mockNotifier) RefreshCompleted(_ context.Context, res refresh.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, res)
	return nil
}

// --- fixtures ---

var testSpecs = []domain.JoinSpec{
	{Family: "range", Table: "mountain_ranges", LabelColumn: "name"},
}

func squareGeom(minX, minY, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{
		{minX, minY}, {minX + size, minY},
		{minX + size, minY + size}, {minX, minY + size},
		{minX, minY},
	}}}
}

func testSource() *mockSource {
	return &mockSource{
		glaciers: []domain.Glacier{
			{ID: "G1", Name: "Bear Glacier", Class: "X10X", Geom: squareGeom(2, 2, 2)},
			{ID: "G2", Name: "Skilak Glacier", Class: "X23X", Geom: squareGeom(50, 50, 2)},
		},
		regions: map[string][]domain.Region{
			"range": {{ID: "R7", Label: "Kenai Mountains", Geom: squareGeom(0, 0, 10)}},
		},
	}
}

func newController(src refresh.Source, pub refresh.Publisher, not refresh.Notifier, clock clockwork.Clock) *refresh.Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return refresh.New(src, pub, not, testSpecs, slog.Default(), observability.NewMetricsForTesting(), clock)
}

// --- tests ---

func TestRefresh_HappyPath(t *testing.T) {
	src := testSource()
	pub := &mockPublisher{}
	not := &mockNotifier{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC))

	c := newController(src, pub, not, clock)
	res, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, clock.Now(), res.BuiltAt)
	assert.Equal(t, refresh.StatePublished, c.State())
	require.NoError(t, c.CheckReadiness(context.Background()))

	snap := c.Published()
	require.NotNil(t, snap)
	require.Equal(t, 2, snap.Len())

	g1, ok := snap.Row("G1")
	require.True(t, ok)
	require.NotNil(t, g1.TerminusType)
	assert.Equal(t, 1, *g1.TerminusType)
	assert.False(t, g1.Surging)
	assert.Equal(t, map[string]string{"range": "Kenai Mountains"}, g1.Regions)

	g2, ok := snap.Row("G2")
	require.True(t, ok)
	require.NotNil(t, g2.TerminusType)
	assert.Equal(t, 2, *g2.TerminusType)
	assert.True(t, g2.Surging)
	assert.Nil(t, g2.Regions)

	require.Len(t, pub.published, 1)
	assert.Same(t, snap, pub.published[0])
	require.Len(t, not.results, 1)
	assert.Equal(t, res.RunID, not.results[0].RunID)
}

func TestRefresh_EmptyGlaciers(t *testing.T) {
	src := testSource()
	src.glaciers = nil

	c := newController(src, &mockPublisher{}, nil, nil)
	_, err := c.Refresh(context.Background())

	var emptyErr *domain.EmptyInputError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, "glaciers", emptyErr.Source)
	assert.Nil(t, c.Published())
	assert.Equal(t, refresh.StateStale, c.State())
	require.Error(t, c.CheckReadiness(context.Background()))
}

func TestRefresh_EmptyRegionFamily(t *testing.T) {
	src := testSource()
	src.setRegions("range", nil)

	c := newController(src, &mockPublisher{}, nil, nil)
	_, err := c.Refresh(context.Background())

	var emptyErr *domain.EmptyInputError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, "mountain_ranges", emptyErr.Source)
	assert.Nil(t, c.Published())
}

func TestRefresh_IntegrityErrorKeepsPreviousSnapshot(t *testing.T) {
	src := testSource()
	c := newController(src, &mockPublisher{}, nil, nil)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	old := c.Published()
	require.NotNil(t, old)

	// Introduce a duplicated region ID so the tie-break cannot resolve it.
	src.setRegions("range", []domain.Region{
		{ID: "R7", Label: "copy one", Geom: squareGeom(0, 0, 10)},
		{ID: "R7", Label: "copy two", Geom: squareGeom(0, 0, 10)},
	})

	_, err = c.Refresh(context.Background())
	var ambErr *domain.JoinAmbiguityError
	require.ErrorAs(t, err, &ambErr)
	assert.Equal(t, "G1", ambErr.GlacierID)

	assert.Same(t, old, c.Published(), "previous snapshot must remain published")
	assert.Equal(t, refresh.StatePublished, c.State())
}

func TestRefresh_PublisherFailure(t *testing.T) {
	src := testSource()
	pub := &mockPublisher{err: errors.New("connection refused")}

	c := newController(src, pub, nil, nil)
	_, err := c.Refresh(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish snapshot")
	assert.Nil(t, c.Published())
	assert.Equal(t, refresh.StateStale, c.State())
}

func TestRefresh_NotifierFailureIsNotFatal(t *testing.T) {
	src := testSource()
	not := &mockNotifier{err: errors.New("broker down")}

	c := newController(src, &mockPublisher{}, not, nil)
	res, err := c.Refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.NotNil(t, c.Published())
}

func TestRefresh_CancelledBeforeSwapHasNoEffect(t *testing.T) {
	src := testSource()
	pub := &mockPublisher{}
	c := newController(src, pub, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.published)
	assert.Nil(t, c.Published())
	assert.Equal(t, refresh.StateStale, c.State())
}

func TestRefresh_ConcurrentRequestRejected(t *testing.T) {
	src := testSource()
	src.block = make(chan struct{})
	c := newController(src, &mockPublisher{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return c.State() == refresh.StateRefreshing
	}, time.Second, time.Millisecond)

	// Refresh B while A is in flight: rejected, not queued.
	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrRefreshInFlight)

	// A completes and publishes normally.
	close(src.block)
	require.NoError(t, <-done)
	assert.Equal(t, refresh.StatePublished, c.State())
	assert.NotNil(t, c.Published())
}

func TestRefresh_IdempotentForUnchangedInputs(t *testing.T) {
	src := testSource()
	c := newController(src, nil, nil, nil)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	first := c.Published().Rows

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	second := c.Published().Rows

	assert.Empty(t, cmp.Diff(first, second))
}

// A reader sampling the published snapshot during refreshes sees either the
// old or the new full row set, never a mix.
func TestRefresh_ReadersNeverObservePartialState(t *testing.T) {
	src := testSource()
	for i := range src.glaciers {
		src.glaciers[i].Name = "old"
	}
	c := newController(src, nil, nil, nil)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	stop := make(chan struct{})
	var readerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := c.Published()
			if snap == nil {
				continue
			}
			labels := make(map[string]struct{})
			for _, row := range snap.Rows {
				labels[row.Name] = struct{}{}
			}
			// Every row in one snapshot carries the same generation marker.
			if len(labels) != 1 {
				readerErr = errors.New("observed mixed-generation snapshot")
				return
			}
		}
	}()

	for gen := 0; gen < 20; gen++ {
		marker := "old"
		if gen%2 == 1 {
			marker = "new"
		}
		src.mu.Lock()
		for i := range src.glaciers {
			src.glaciers[i].Name = marker
		}
		src.mu.Unlock()
		_, err := c.Refresh(context.Background())
		require.NoError(t, err)
	}

	close(stop)
	wg.Wait()
	require.NoError(t, readerErr)
}
