package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
	nativecommon "synthledger/native/common"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
)

const maxBodyBytes = 1 << 20

// problem is the JSON body of every failed request.
type problem struct {
	Error    string            `json:"error"`
	Category string            `json:"category,omitempty"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, problem{Error: kind, Message: message})
}

// writeError maps ledger failures onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	if le, ok := ledgererrors.As(err); ok {
		body := problem{Error: le.Kind(), Category: le.Category().Error(), Message: le.Error()}
		if fields := le.Fields(); len(fields) > 0 {
			body.Fields = make(map[string]string, len(fields))
			for _, f := range fields {
				body.Fields[f.Name] = f.Value
			}
		}
		writeJSON(w, categoryStatus(le.Category()), body)
		return
	}
	switch {
	case errors.Is(err, errBadRequest):
		writeProblem(w, http.StatusBadRequest, "BadRequest", err.Error())
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeProblem(w, http.StatusServiceUnavailable, "ModulePaused", err.Error())
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrUnknownCollateral):
		writeProblem(w, http.StatusServiceUnavailable, "PriceUnavailable", err.Error())
	case errors.Is(err, ledger.ErrReentrantCall):
		writeProblem(w, http.StatusConflict, "ReentrantCall", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

func categoryStatus(category error) int {
	switch category {
	case ledgererrors.ErrValidation:
		return http.StatusBadRequest
	case ledgererrors.ErrAuthorization:
		return http.StatusForbidden
	case ledgererrors.ErrNotFound:
		return http.StatusNotFound
	case ledgererrors.ErrSolvency:
		return http.StatusUnprocessableEntity
	case ledgererrors.ErrCapacity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func parseID(field, raw string) (types.ID, error) {
	id, err := types.ParseID(raw)
	if err != nil {
		return types.ID{}, badRequest("%s: %v", field, err)
	}
	return id, nil
}

func pathID(r *http.Request, param string) (types.ID, error) {
	return parseID(param, chi.URLParam(r, param))
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func pathAddress(r *http.Request, param string) (common.Address, error) {
	return parseAddress(param, chi.URLParam(r, param))
}

// parseAmount reads a decimal string into D18 fixed point. Signs are allowed;
// the ledger rejects negatives where they make no sense.
func parseAmount(field, raw string) (*big.Int, error) {
	value, err := decimalmath.ParseD18(raw)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return value, nil
}

func parseUint(field, raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest("%s: %v", field, err)
	}
	return v, nil
}

func fmtAmount(v *big.Int) string { return decimalmath.FormatD18(v) }
