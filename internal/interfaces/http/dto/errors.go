package dto

import (
	"net/http"

	"github.com/vendfleet/backend/internal/domain/ledger"
)

// General error codes
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes.
// Only CONCURRENT_MODIFICATION maps to 409, the signal clients may
// safely retry on; the business rejections map to 422 so a retry with
// the same payload is understood to be pointless.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeConflict:   http.StatusConflict,

	ledger.ErrCodeInvalidQuantity:        http.StatusBadRequest,
	ledger.ErrCodeInsufficientStock:      http.StatusUnprocessableEntity,
	ledger.ErrCodeInsufficientUnreserved: http.StatusUnprocessableEntity,
	ledger.ErrCodeCapacityExceeded:       http.StatusUnprocessableEntity,
	ledger.ErrCodeUnknownStockRecord:     http.StatusNotFound,
	ledger.ErrCodeInvalidState:           http.StatusUnprocessableEntity,
	ledger.ErrCodeIllegalLevelTransition: http.StatusUnprocessableEntity,
	ledger.ErrCodeConcurrentModification: http.StatusConflict,

	"NOT_FOUND":            http.StatusNotFound,
	"ALREADY_EXISTS":       http.StatusConflict,
	"INVALID_INPUT":        http.StatusBadRequest,
	"CONCURRENCY_CONFLICT": http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes are treated as internal errors.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
