package stocksync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync-api/internal/model"
	"stocksync-api/internal/syncerr"
)

type fakeProducts struct {
	mu       sync.Mutex
	products []*model.Product
	updates  int
}

func (f *fakeProducts) FindByID(ctx context.Context, id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProducts) FindByBarcode(ctx context.Context, code string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		for _, c := range p.Barcodes() {
			if c == code {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeProducts) Update(ctx context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

type fakeDeltas struct {
	mu     sync.Mutex
	deltas map[string]*model.StockDelta
	saves  []model.DeltaState
}

func newFakeDeltas(ds ...*model.StockDelta) *fakeDeltas {
	f := &fakeDeltas{deltas: make(map[string]*model.StockDelta)}
	for _, d := range ds {
		f.deltas[d.ID] = d
	}
	return f
}

func (f *fakeDeltas) Get(ctx context.Context, id string) (*model.StockDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deltas[id], nil
}

// Save refuses a finished context the way a database driver does.
func (f *fakeDeltas) Save(ctx context.Context, d *model.StockDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, d.State)
	return nil
}

type fakeMovements map[string]*model.StockMovement

func (f fakeMovements) Get(ctx context.Context, id string) (*model.StockMovement, error) {
	return f[id], nil
}

type transfer struct {
	sku, from, to string
	qty           int
}

// fakeRemote is both reader and writer and counts every call.
type fakeRemote struct {
	mu        sync.Mutex
	levels    map[string]int
	readErr   error
	blockRead bool
	writeErr  error
	reads     int
	writes    []int
	transfers []transfer
}

func (f *fakeRemote) GetStockLevel(ctx context.Context, sku string) (*model.StockLevel, error) {
	if f.blockRead {
		<-ctx.Done()
		return nil, syncerr.Connection("remote POST /api/Stock/GetStockLevel", ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	level, ok := f.levels[sku]
	if !ok {
		return nil, nil
	}
	return &model.StockLevel{SKU: sku, Level: level}, nil
}

func (f *fakeRemote) SetStockLevel(ctx context.Context, sku, locationID string, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, level)
	if f.writeErr != nil {
		return f.writeErr
	}
	f.levels[sku] = level
	return nil
}

func (f *fakeRemote) TransferStock(ctx context.Context, sku, from, to string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, transfer{sku, from, to, qty})
	return f.writeErr
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads + len(f.writes) + len(f.transfers)
}

func widget() *model.Product {
	return &model.Product{ID: "p1", SKU: "WID-1", Barcode: "111", Barcode2: "222", Barcode3: "333"}
}

func newTestEngine(remote *fakeRemote, deltas *fakeDeltas, cfg Config) (*Engine, *fakeProducts) {
	products := &fakeProducts{products: []*model.Product{widget()}}
	movements := fakeMovements{
		"m1": {ID: "m1", ProductID: "p1", FromLocation: "overstock", Quantity: 6, Type: model.MovementBayRefill},
		"m2": {ID: "m2", ProductID: "missing", Quantity: 1, Type: model.MovementBayRefill},
	}
	if cfg.DefaultLocation == "" {
		cfg.DefaultLocation = "default"
	}
	return NewEngine(products, deltas, movements, remote, remote, cfg), products
}

func TestNextLevel_NeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("new level is max(0, current +/- change)", prop.ForAll(
		func(current, change int, increase bool) bool {
			reason := model.ReasonDecrease
			want := current - change
			if increase {
				reason = model.ReasonIncrease
				want = current + change
			}
			if want < 0 {
				want = 0
			}
			got := NextLevel(current, change, reason)
			return got >= 0 && got == want
		},
		gen.IntRange(0, 1000),
		gen.IntRange(-2000, 2000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestSync_DecreaseBelowZeroClampsToZero(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 3}}
	d := &model.StockDelta{ID: "d1", ItemKey: "111", QuantityChange: 5, Reason: model.ReasonDecrease, State: model.DeltaUnsubmitted}
	engine, products := newTestEngine(remote, newFakeDeltas(d), Config{})

	res, err := engine.Sync(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, remote.writes)
	assert.Equal(t, 3, res.PreviousLevel)
	assert.Equal(t, 0, res.NewLevel)
	assert.Equal(t, model.DeltaSynced, d.State)
	assert.NotNil(t, d.SubmittedAt)
	assert.Equal(t, 1, products.updates)
}

func TestSync_Increase(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 50}}
	d := &model.StockDelta{ID: "d1", ItemKey: "222", QuantityChange: 10, Reason: model.ReasonIncrease}
	deltas := newFakeDeltas(d)
	engine, _ := newTestEngine(remote, deltas, Config{})

	_, err := engine.SyncDelta(context.Background(), "d1")
	require.NoError(t, err)

	assert.Equal(t, []int{60}, remote.writes)
	assert.Equal(t, []model.DeltaState{model.DeltaSubmitted, model.DeltaSynced}, deltas.saves)
	require.NotNil(t, d.NewLevel)
	assert.Equal(t, 60, *d.NewLevel)
}

func TestSync_AlreadySyncedMakesNoCalls(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 50}}
	d := &model.StockDelta{ID: "d1", ItemKey: "111", QuantityChange: 10, Reason: model.ReasonIncrease, State: model.DeltaSynced}
	deltas := newFakeDeltas(d)
	engine, _ := newTestEngine(remote, deltas, Config{})

	for i := 0; i < 3; i++ {
		res, err := engine.SyncDelta(context.Background(), "d1")
		require.NoError(t, err)
		assert.True(t, res.AlreadySynced)
	}

	assert.Zero(t, remote.calls())
	assert.Empty(t, deltas.saves)
}

func TestSync_UnresolvedBarcodeMakesNoRemoteCall(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 50}}
	d := &model.StockDelta{ID: "d1", ItemKey: "999", QuantityChange: 1, Reason: model.ReasonDecrease}
	engine, _ := newTestEngine(remote, newFakeDeltas(d), Config{})

	_, err := engine.Sync(context.Background(), d)
	require.Error(t, err)

	assert.Equal(t, syncerr.KindUnresolvedItem, syncerr.KindOf(err))
	assert.Equal(t, model.DeltaFailed, d.State)
	assert.Equal(t, "unresolved_item", d.ErrorType)
	assert.Nil(t, d.SubmittedAt)
	assert.Zero(t, remote.calls())
}

func TestSync_RemoteReadFailureIsRecorded(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{}, readErr: syncerr.Connection("remote POST /api/Stock/GetStockLevel", errors.New("timeout"))}
	d := &model.StockDelta{ID: "d1", ItemKey: "333", QuantityChange: 1, Reason: model.ReasonIncrease}
	engine, _ := newTestEngine(remote, newFakeDeltas(d), Config{})

	_, err := engine.Sync(context.Background(), d)
	require.Error(t, err)

	assert.Equal(t, syncerr.KindConnection, syncerr.KindOf(err))
	assert.Equal(t, model.DeltaFailed, d.State)
	assert.Contains(t, d.ErrorMessage, "timeout")
	assert.Empty(t, remote.writes)
}

func TestSync_TimedOutDeltaIsRecordedAsFailed(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 5}, blockRead: true}
	d := &model.StockDelta{ID: "d1", ItemKey: "111", QuantityChange: 1, Reason: model.ReasonIncrease}
	deltas := newFakeDeltas(d)
	engine, _ := newTestEngine(remote, deltas, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.Sync(ctx, d)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindConnection, syncerr.KindOf(err))

	deltas.mu.Lock()
	defer deltas.mu.Unlock()
	assert.Equal(t, []model.DeltaState{model.DeltaSubmitted, model.DeltaFailed}, deltas.saves)
}

func TestSync_MissingRemoteSKU(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{}}
	d := &model.StockDelta{ID: "d1", ItemKey: "111", QuantityChange: 1, Reason: model.ReasonIncrease}
	engine, _ := newTestEngine(remote, newFakeDeltas(d), Config{})

	_, err := engine.Sync(context.Background(), d)
	assert.Equal(t, syncerr.KindUnresolvedItem, syncerr.KindOf(err))
	assert.Empty(t, remote.writes)
}

func TestSync_WriteFailureLeavesDeltaRetryable(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 5}, writeErr: syncerr.RemoteServer("remote POST /api/Stock/SetStockLevel", 503, "busy")}
	d := &model.StockDelta{ID: "d1", ItemKey: "111", QuantityChange: 1, Reason: model.ReasonIncrease}
	engine, _ := newTestEngine(remote, newFakeDeltas(d), Config{})

	_, err := engine.Sync(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, model.DeltaFailed, d.State)

	remote.writeErr = nil
	res, err := engine.Sync(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 6, res.NewLevel)
	assert.Equal(t, model.DeltaSynced, d.State)
	assert.Empty(t, d.ErrorType)
}

func TestSync_ValidationFailures(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{}}
	engine, _ := newTestEngine(remote, newFakeDeltas(), Config{})

	for _, d := range []*model.StockDelta{
		{ID: "a", Reason: model.ReasonIncrease, QuantityChange: 1},
		{ID: "b", ItemKey: "111", Reason: "sideways", QuantityChange: 1},
	} {
		_, err := engine.Sync(context.Background(), d)
		assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err), d.ID)
		assert.Equal(t, model.DeltaFailed, d.State)
	}

	_, err := engine.SyncDelta(context.Background(), "nope")
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
	assert.Zero(t, remote.calls())
}

func TestSync_SerializedSameItemDeltasDoNotLoseUpdates(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{"WID-1": 100}}
	deltas := newFakeDeltas()
	engine, _ := newTestEngine(remote, deltas, Config{SerializeItems: true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := &model.StockDelta{ItemKey: "111", QuantityChange: 1, Reason: model.ReasonDecrease}
			_, err := engine.Sync(context.Background(), d)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 80, remote.levels["WID-1"])
}

func TestSyncMovement_TransfersIntoDefaultLocation(t *testing.T) {
	remote := &fakeRemote{levels: map[string]int{}}
	engine, _ := newTestEngine(remote, newFakeDeltas(), Config{DefaultLocation: "loc-default"})

	require.NoError(t, engine.SyncMovement(context.Background(), "m1"))
	assert.Equal(t, []transfer{{sku: "WID-1", from: "overstock", to: "loc-default", qty: 6}}, remote.transfers)

	err := engine.SyncMovement(context.Background(), "m2")
	assert.Equal(t, syncerr.KindUnresolvedItem, syncerr.KindOf(err))

	err = engine.SyncMovement(context.Background(), "m404")
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
