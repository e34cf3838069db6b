package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/arclight-network/al-withdrawals-api/database"
	"github.com/ethereum/go-ethereum/common"
)

// defaultPendingLimit bounds the pending scan when no limit is given.
const defaultPendingLimit = 30

func (s *Server) handleWithdrawalsGet(w http.ResponseWriter, r *http.Request) {
	// Get query parameters
	address := r.URL.Query().Get("address")
	if !common.IsHexAddress(address) {
		ERROR(w, http.StatusBadRequest, errors.New("address must be a hex address"))
		return
	}

	// limit is required: the query engine performs no unbounded scan
	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit < 1 {
		ERROR(w, http.StatusBadRequest, database.ErrInvalidLimit)
		return
	}

	// Addresses are stored checksummed, normalize the input the same way
	withdrawals, err := s.db.WithdrawalsForAddress(r.Context(), common.HexToAddress(address).Hex(), limit)
	if err != nil {
		if errors.Is(err, database.ErrInvalidLimit) || errors.Is(err, database.ErrMissingAddress) {
			ERROR(w, http.StatusBadRequest, err)
			return
		}
		ERROR(w, http.StatusInternalServerError, err)
		return
	}

	JSON(w, http.StatusOK, withdrawals)
}

func (s *Server) handlePendingWithdrawalsGet(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultPendingLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			ERROR(w, http.StatusBadRequest, database.ErrInvalidLimit)
			return
		}
		limit = parsed
	}

	withdrawals, err := s.db.UnfinalizedWithdrawals(r.Context(), limit)
	if err != nil {
		ERROR(w, http.StatusInternalServerError, err)
		return
	}

	JSON(w, http.StatusOK, withdrawals)
}
