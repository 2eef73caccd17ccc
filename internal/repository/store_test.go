package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync-api/internal/model"
)

func newMockStore(t *testing.T, driver string) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, driver)
	require.NoError(t, err)
	return store, mock
}

var productCols = []string{"id", "sku", "name", "price", "stock_level", "barcode", "barcode_2", "barcode_3", "last_synced_at", "created_at", "updated_at"}

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", postgresDialect.rebind(q))
	assert.Equal(t, q, mysqlDialect.rebind(q))
	assert.Equal(t, q, sqliteDialect.rebind(q))
}

func TestDialectFor_Unknown(t *testing.T) {
	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestMigrate_MySQLUsesInlineIndexes(t *testing.T) {
	store, mock := newMockStore(t, "mysql")

	for _, table := range []string{"products", "stock_deltas", "stock_movements", "pending_product_updates"} {
		mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` .*INDEX idx_`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_PostgresCreatesIndexesSeparately(t *testing.T) {
	store, mock := newMockStore(t, "postgres")

	for _, tbl := range store.tables() {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + tbl.name)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		for _, idx := range tbl.indexes {
			mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS " + idx[0] + " ON " + tbl.name)).
				WillReturnResult(sqlmock.NewResult(0, 0))
		}
	}

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_FindByBarcodeFallsThroughFields(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE barcode = $1")).
		WithArgs("5000").
		WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE barcode_2 = $1")).
		WithArgs("5000").
		WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE barcode_3 = $1")).
		WithArgs("5000").
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow("p1", "SKU-1", "Widget", "4.99", 12, "1111", "", "5000", nil, now, now))

	p, err := store.Products().FindByBarcode(context.Background(), "5000")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "SKU-1", p.SKU)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("4.99")))
	assert.Nil(t, p.LastSyncedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_FindByBarcodeEmptyCode(t *testing.T) {
	store, mock := newMockStore(t, "postgres")

	p, err := store.Products().FindByBarcode(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query for an empty code")
}

func TestDeltaRepository_GetMissing(t *testing.T) {
	store, mock := newMockStore(t, "mysql")

	mock.ExpectQuery(regexp.QuoteMeta("FROM stock_deltas WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	d, err := store.Deltas().Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDeltaRepository_SaveFailure(t *testing.T) {
	store, mock := newMockStore(t, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE stock_deltas")).
		WithArgs("failed", nil, nil, "connection", "timeout", nil, sqlmock.AnyArg(), "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &model.StockDelta{ID: "d1", State: model.DeltaFailed, ErrorType: "connection", ErrorMessage: "timeout"}
	require.NoError(t, store.Deltas().Save(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingUpdateRepository_CreateEncodesChanges(t *testing.T) {
	store, mock := newMockStore(t, "mysql")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pending_product_updates")).
		WithArgs(sqlmock.AnyArg(), "p1", `{"name":{"local":"A","remote":"B"}}`, "pending", "", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.PendingProductUpdate{
		ProductID:       "p1",
		ChangesDetected: model.Changes{model.FieldName: {Local: "A", Remote: "B"}},
	}
	require.NoError(t, store.PendingUpdates().Create(context.Background(), u))

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, model.UpdatePending, u.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingUpdateRepository_ResolveNotPending(t *testing.T) {
	store, mock := newMockStore(t, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pending_product_updates")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	err := store.PendingUpdates().Resolve(context.Background(), &model.PendingProductUpdate{
		ID: "u1", Status: model.UpdateRejected, ReviewerID: "r1", ReviewedAt: &now,
	})
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := OpenSQLStore("sqlite", ":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	products := store.Products()
	p := &model.Product{SKU: "SKU-9", Name: "Bolt", Price: decimal.RequireFromString("0.35"), StockLevel: 40, Barcode2: "222", Barcode3: "333"}
	require.NoError(t, products.Create(ctx, p))

	found, err := products.FindByBarcode(ctx, "333")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)
	assert.True(t, found.Price.Equal(p.Price))

	found.StockLevel = 38
	require.NoError(t, products.Update(ctx, found))
	again, err := products.FindBySKU(ctx, "SKU-9")
	require.NoError(t, err)
	assert.Equal(t, 38, again.StockLevel)

	deltas := store.Deltas()
	d := &model.StockDelta{ItemKey: "333", QuantityChange: 2, Reason: model.ReasonDecrease}
	require.NoError(t, deltas.Create(ctx, d))
	level := 36
	d.State = model.DeltaSynced
	d.NewLevel = &level
	require.NoError(t, deltas.Save(ctx, d))

	loaded, err := deltas.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeltaSynced, loaded.State)
	require.NotNil(t, loaded.NewLevel)
	assert.Equal(t, 36, *loaded.NewLevel)
	assert.Nil(t, loaded.PreviousLevel)

	updates := store.PendingUpdates()
	u := &model.PendingProductUpdate{ProductID: p.ID, ChangesDetected: model.Changes{model.FieldName: {Local: "Bolt", Remote: "Hex Bolt"}}}
	require.NoError(t, updates.Create(ctx, u))

	open, err := updates.FindPendingByProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "Hex Bolt", open.ChangesDetected[model.FieldName].Remote)

	now := time.Now().UTC()
	open.Status = model.UpdateApproved
	open.ReviewerID = "reviewer"
	open.ReviewedAt = &now
	require.NoError(t, updates.Resolve(ctx, open))
	assert.ErrorIs(t, updates.Resolve(ctx, open), ErrNotPending)

	list, total, err := updates.List(ctx, model.UpdateApproved, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "reviewer", list[0].ReviewerID)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats["products"])
}
