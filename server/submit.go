package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"folioscope/safebatch"
)

type batchRequest struct {
	Operations []safebatch.Operation `json:"operations"`
}

type directRequest struct {
	// SignedTx is the RLP encoding of a pre-signed transaction, hex encoded.
	SignedTx string `json:"signedTx"`
	// Wait blocks the request until the receipt appears.
	Wait bool `json:"wait,omitempty"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	authorization, err := s.builder.SubmitBatched(r.Context(), req.Operations)
	if err != nil {
		if valErr, ok := safebatch.AsValidationError(err); ok {
			writeError(w, http.StatusBadRequest, valErr.Error())
			return
		}
		s.logger.Error("batch submission failed", "error", err)
		writeError(w, http.StatusBadGateway, "batch submission failed")
		return
	}
	writeJSON(w, http.StatusAccepted, authorization)
}

func (s *Server) submitDirect(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	raw, err := hexutil.Decode(req.SignedTx)
	if err != nil {
		writeError(w, http.StatusBadRequest, "signedTx must be a hex-encoded signed transaction")
		return
	}
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		writeError(w, http.StatusBadRequest, "signedTx is not a valid transaction")
		return
	}
	result, err := s.builder.SubmitDirect(r.Context(), tx)
	if err != nil {
		s.logger.Error("direct submission failed", "error", err)
		writeError(w, http.StatusBadGateway, "direct submission failed")
		return
	}
	// A declined signature request is a neutral outcome and still a 200.
	if result.Status == safebatch.StatusDeclined {
		writeJSON(w, http.StatusOK, result)
		return
	}
	if req.Wait {
		settled, err := s.builder.WaitDirect(r.Context(), result.TxID)
		if err != nil {
			s.logger.Warn("direct settlement wait failed", "tx", result.TxID, "error", err)
			writeJSON(w, http.StatusAccepted, result)
			return
		}
		writeJSON(w, http.StatusOK, settled)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return err
	}
	return nil
}
