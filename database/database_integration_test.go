package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"github.com/arclight-network/al-withdrawals-api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real MongoDB. Set TEST_DATABASE_URI to
// enable them, e.g. TEST_DATABASE_URI=mongodb://localhost:27017.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("TEST_DATABASE_URI not set")
	}

	db, err := NewDatabase(DatabaseOpts{
		URI:          uri,
		DatabaseName: fmt.Sprintf("withdrawals_test_%d", time.Now().UnixNano()),
		Logger:       slog.Default(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.CreateIndexes(ctx))

	t.Cleanup(func() {
		_ = db.client.Database(db.databaseName).Drop(context.Background())
		_ = db.client.Disconnect(context.Background())
	})

	return db
}

func testEvent(block, index uint64, to string) models.Event {
	return models.Event{
		L2BlockNumber:   block,
		TxNumberInBlock: index,
		ToAddress:       to,
		L1TokenAddr:     "0x00000000000000000000000000000000000A11ce",
		Amount:          "1000000000000000000",
	}
}

func TestCreateEventDeduplicates(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	event := testEvent(10, 0, "0xRecipient")
	require.NoError(t, db.CreateEvent(ctx, event))

	// identical redelivery is a no-op
	require.NoError(t, db.CreateEvent(ctx, event))

	// same position, different payload
	conflicting := event
	conflicting.Amount = "2000000000000000000"
	err := db.CreateEvent(ctx, conflicting)
	assert.ErrorIs(t, err, ErrDuplicateEventKey)
}

func TestBatchCreateEventsSkipsDuplicates(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	first := testEvent(40, 0, "0xRecipient")
	second := testEvent(40, 1, "0xRecipient")
	require.NoError(t, db.BatchCreateEvents(ctx, []models.Event{first, second}))

	// a retried batch overlapping the previous one inserts only the
	// new rows
	third := testEvent(41, 0, "0xRecipient")
	require.NoError(t, db.BatchCreateEvents(ctx, []models.Event{first, second, third}))

	for _, want := range []models.Event{first, second, third} {
		got, err := db.EventByKey(ctx, want.Key())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// an empty batch is a no-op
	require.NoError(t, db.BatchCreateEvents(ctx, nil))
}

func TestRegisterWithdrawalIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	key := models.EventKey{L2BlockNumber: 10, TxNumberInBlock: 0}

	first, err := db.RegisterWithdrawal(ctx, key, "0xaaa")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := db.RegisterWithdrawal(ctx, key, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// same position, different tx hash, is a genuine conflict
	_, err = db.RegisterWithdrawal(ctx, key, "0xbbb")
	assert.ErrorIs(t, err, ErrDuplicateEventKey)
}

func TestRegisterWithdrawalAttachesTxHashOnce(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	key := models.EventKey{L2BlockNumber: 11, TxNumberInBlock: 2}

	id, err := db.RegisterWithdrawal(ctx, key, "")
	require.NoError(t, err)

	again, err := db.RegisterWithdrawal(ctx, key, "0xccc")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	withdrawal, err := db.WithdrawalByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "0xccc", withdrawal.TxHash)

	// the attached hash is now fixed
	_, err = db.RegisterWithdrawal(ctx, key, "0xddd")
	assert.ErrorIs(t, err, ErrDuplicateEventKey)
}

func TestRegisterWithdrawalConcurrentAttachConflict(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	key := models.EventKey{L2BlockNumber: 50, TxNumberInBlock: 0}
	_, err := db.RegisterWithdrawal(ctx, key, "")
	require.NoError(t, err)

	// two concurrent callers race to attach different hashes: exactly
	// one wins, the other must see the conflict rather than succeed
	errs := make(chan error, 2)
	go func() {
		_, err := db.RegisterWithdrawal(ctx, key, "0xaaa")
		errs <- err
	}()
	go func() {
		_, err := db.RegisterWithdrawal(ctx, key, "0xbbb")
		errs <- err
	}()

	var conflicts int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, ErrDuplicateEventKey)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)

	withdrawal, err := db.WithdrawalByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, []string{"0xaaa", "0xbbb"}, withdrawal.TxHash)
}

func TestConfirmFinalizationStateMachine(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	key := models.EventKey{L2BlockNumber: 12, TxNumberInBlock: 1}
	id, err := db.RegisterWithdrawal(ctx, key, "0xaaa")
	require.NoError(t, err)

	// confirmation with no pending row
	err = db.ConfirmFinalization(ctx, id, "0xf1")
	assert.ErrorIs(t, err, ErrUnknownWithdrawal)

	require.NoError(t, db.RecordFinalizationAttempt(ctx, id, "0xSender", key))

	// re-recording the attempt is a no-op
	require.NoError(t, db.RecordFinalizationAttempt(ctx, id, "0xSender", key))

	finalization, err := db.FinalizationByWithdrawalID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, finalization.FinalizationTx)

	require.NoError(t, db.ConfirmFinalization(ctx, id, "0xf1"))

	// confirming again with the same hash is a no-op
	require.NoError(t, db.ConfirmFinalization(ctx, id, "0xf1"))

	// a different hash is never silently overwritten
	err = db.ConfirmFinalization(ctx, id, "0xf2")
	assert.ErrorIs(t, err, ErrFinalizationConflict)

	finalization, err = db.FinalizationByWithdrawalID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, finalization.FinalizationTx)
	assert.Equal(t, "0xf1", *finalization.FinalizationTx)
}

func TestWithdrawalsForAddressOrderingAndPending(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	to := "0xRecipient"
	for _, block := range []uint64{10, 7, 15} {
		event := testEvent(block, 0, to)
		require.NoError(t, db.CreateEvent(ctx, event))
		_, err := db.RegisterWithdrawal(ctx, event.Key(), fmt.Sprintf("0xtx%d", block))
		require.NoError(t, err)
	}

	views, err := db.WithdrawalsForAddress(ctx, to, 3)
	require.NoError(t, err)
	require.Len(t, views, 3)

	// strictly descending by originating block number
	assert.Equal(t, uint64(15), views[0].L2BlockNumber)
	assert.Equal(t, uint64(10), views[1].L2BlockNumber)
	assert.Equal(t, uint64(7), views[2].L2BlockNumber)

	// un-finalized withdrawals are never hidden
	for _, view := range views {
		assert.Nil(t, view.FinalizationTx)
		assert.Equal(t, types.NoAttempt, view.FinalizationStatus)
	}

	// limit bounds the result
	views, err = db.WithdrawalsForAddress(ctx, to, 2)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestWithdrawalsForAddressMatchesRecipientAndSender(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	event := testEvent(20, 1, "0xRecipient")
	require.NoError(t, db.CreateEvent(ctx, event))
	id, err := db.RegisterWithdrawal(ctx, event.Key(), "0xabc")
	require.NoError(t, err)

	require.NoError(t, db.RecordFinalizationAttempt(ctx, id, "0xSender", event.Key()))
	require.NoError(t, db.ConfirmFinalization(ctx, id, "0xfin"))

	// visible to the recipient
	views, err := db.WithdrawalsForAddress(ctx, "0xRecipient", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].FinalizationTx)
	assert.Equal(t, "0xfin", *views[0].FinalizationTx)
	assert.Equal(t, types.Finalized, views[0].FinalizationStatus)

	// and to the finalizing sender
	views, err = db.WithdrawalsForAddress(ctx, "0xSender", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "0xabc", views[0].TxHash)

	// an unrelated address sees nothing
	views, err = db.WithdrawalsForAddress(ctx, "0xNobody", 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestWithdrawalsForAddressNoDuplicateWhenRecipientFinalizesOwnWithdrawal(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	same := "0xSameIdentity"
	event := testEvent(21, 0, same)
	require.NoError(t, db.CreateEvent(ctx, event))
	id, err := db.RegisterWithdrawal(ctx, event.Key(), "0xabc")
	require.NoError(t, err)
	require.NoError(t, db.RecordFinalizationAttempt(ctx, id, same, event.Key()))

	views, err := db.WithdrawalsForAddress(ctx, same, 10)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestUnclassifiedEventsNeverSurface(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	// ingested but no withdrawal registered yet
	require.NoError(t, db.CreateEvent(ctx, testEvent(30, 0, "0xRecipient")))

	views, err := db.WithdrawalsForAddress(ctx, "0xRecipient", 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestAmountRoundTripsDigitForDigit(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	// 18 decimal places, not representable exactly as a float64
	amount := "123456789.987654321123456789"
	event := testEvent(31, 0, "0xRecipient")
	event.Amount = amount

	require.NoError(t, db.CreateEvent(ctx, event))
	_, err := db.RegisterWithdrawal(ctx, event.Key(), "0xabc")
	require.NoError(t, err)

	views, err := db.WithdrawalsForAddress(ctx, "0xRecipient", 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, amount, views[0].Amount)
}

func TestUnfinalizedWithdrawalsScan(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	for _, block := range []uint64{5, 3, 8} {
		event := testEvent(block, 0, "0xRecipient")
		require.NoError(t, db.CreateEvent(ctx, event))
		id, err := db.RegisterWithdrawal(ctx, event.Key(), fmt.Sprintf("0xtx%d", block))
		require.NoError(t, err)

		// finalize only block 5
		if block == 5 {
			require.NoError(t, db.RecordFinalizationAttempt(ctx, id, "0xSender", event.Key()))
			require.NoError(t, db.ConfirmFinalization(ctx, id, "0xfin"))
		}
	}

	views, err := db.UnfinalizedWithdrawals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, views, 2)

	// oldest first
	assert.Equal(t, uint64(3), views[0].L2BlockNumber)
	assert.Equal(t, uint64(8), views[1].L2BlockNumber)
}
