package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"github.com/arclight-network/al-withdrawals-api/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	views []models.WithdrawalView
	err   error

	gotAddress string
	gotLimit   int64
}

func (f *fakeStore) WithdrawalsForAddress(ctx context.Context, address string, limit int64) ([]models.WithdrawalView, error) {
	f.gotAddress = address
	f.gotLimit = limit
	return f.views, f.err
}

func (f *fakeStore) UnfinalizedWithdrawals(ctx context.Context, limit int64) ([]models.WithdrawalView, error) {
	f.gotLimit = limit
	return f.views, f.err
}

func newTestServer(store Store) *Server {
	s := &Server{
		log: slog.Default(),
		db:  store,
	}
	s.routes()
	return s
}

func doRequest(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleWithdrawalsGet(t *testing.T) {
	finTx := "0xfin"
	store := &fakeStore{
		views: []models.WithdrawalView{
			{
				L2BlockNumber:      15,
				TxNumberInBlock:    0,
				L1TokenAddr:        "0xToken",
				Amount:             "123456789.987654321123456789",
				TxHash:             "0xabc",
				FinalizationTx:     &finTx,
				FinalizationStatus: types.Finalized,
			},
			{
				L2BlockNumber:      10,
				TxNumberInBlock:    2,
				L1TokenAddr:        "0xToken",
				Amount:             "1",
				TxHash:             "0xdef",
				FinalizationStatus: types.NoAttempt,
			},
		},
	}
	s := newTestServer(store)

	address := "0x000000000000000000000000000000000000dead"
	rec := doRequest(s, "/v1/withdrawals?address="+address+"&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	// input address is normalized to its checksummed form
	assert.Equal(t, common.HexToAddress(address).Hex(), store.gotAddress)
	assert.Equal(t, int64(10), store.gotLimit)

	var got []models.WithdrawalView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, store.views, got)

	// the pending row keeps an explicit null finalization_tx
	assert.Nil(t, got[1].FinalizationTx)
	assert.Equal(t, types.NoAttempt, got[1].FinalizationStatus)
	// and the amount survives the trip untouched
	assert.Equal(t, "123456789.987654321123456789", got[0].Amount)
}

func TestHandleWithdrawalsGetRejectsBadAddress(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec := doRequest(s, "/v1/withdrawals?limit=10")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "/v1/withdrawals?address=nonsense&limit=10")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWithdrawalsGetRequiresLimit(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(store)
	address := "0x000000000000000000000000000000000000dead"

	rec := doRequest(s, "/v1/withdrawals?address="+address)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "/v1/withdrawals?address="+address+"&limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "/v1/withdrawals?address="+address+"&limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the store is never reached without a valid limit
	assert.Empty(t, store.gotAddress)
}

func TestHandleWithdrawalsGetStoreError(t *testing.T) {
	s := newTestServer(&fakeStore{err: errors.New("connection lost")})
	address := "0x000000000000000000000000000000000000dead"

	rec := doRequest(s, "/v1/withdrawals?address="+address+"&limit=5")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlePendingWithdrawalsGet(t *testing.T) {
	store := &fakeStore{views: []models.WithdrawalView{{L2BlockNumber: 3, TxHash: "0xabc"}}}
	s := newTestServer(store)

	rec := doRequest(s, "/v1/withdrawals/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(defaultPendingLimit), store.gotLimit)

	rec = doRequest(s, "/v1/withdrawals/pending?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), store.gotLimit)

	rec = doRequest(s, "/v1/withdrawals/pending?limit=junk")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
