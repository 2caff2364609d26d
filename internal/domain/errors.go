package domain

import "errors"

// Domain errors
var (
	ErrValidation        = errors.New("invalid request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrRankingNotFound   = errors.New("player not found in ranking")
	ErrNoDailyQuestion   = errors.New("no daily question available")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInternalError     = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrRankingNotFound)
}
