package market

import "errors"

// Kind classifies a settlement failure. Transports map kinds to status codes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig
	KindValidation
	KindState
	KindAuthorization
	KindArithmetic
	KindPayout
	KindFunds
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindArithmetic:
		return "arithmetic"
	case KindPayout:
		return "payout"
	case KindFunds:
		return "funds"
	default:
		return "unknown"
	}
}

// Error is a classified settlement error. Values are package-level
// sentinels, so callers match them with errors.Is even after wrapping.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Config errors.
var (
	ErrFeeTooHigh          = newError(KindConfig, "FeeTooHigh", "fee exceeds 500 basis points")
	ErrInvalidFeeRecipient = newError(KindConfig, "InvalidFeeRecipient", "fee recipient must be set")
)

// Validation errors. CreateMarket reports the first failing check in
// declaration order.
var (
	ErrInvalidOutcomes = newError(KindValidation, "InvalidOutcomes", "market needs between 2 and 8 outcomes")
	ErrInvalidOutcome  = newError(KindValidation, "InvalidOutcome", "invalid outcome")
	ErrInvalidQuestion = newError(KindValidation, "InvalidQuestion", "question must be 1 to 200 characters")
	ErrInvalidEndTime  = newError(KindValidation, "InvalidEndTime", "end time must be at least one hour in the future")
	ErrEndTimeTooFar   = newError(KindValidation, "EndTimeTooFar", "end time must be within 90 days")
	ErrInvalidMinBet   = newError(KindValidation, "InvalidMinBet", "minimum bet must be positive")
	ErrInvalidIdentity = newError(KindValidation, "InvalidIdentity", "identity must be set")
	ErrInvalidAmount   = newError(KindValidation, "InvalidAmount", "amount must be positive")
	ErrBetTooSmall     = newError(KindValidation, "BetTooSmall", "bet is below the market minimum")
)

// State errors.
var (
	ErrAlreadyInitialized   = newError(KindState, "AlreadyInitialized", "platform already initialized")
	ErrNotInitialized       = newError(KindState, "NotInitialized", "platform not initialized")
	ErrDuplicateMarket      = newError(KindState, "DuplicateMarket", "market id already exists")
	ErrMarketNotFound       = newError(KindState, "MarketNotFound", "market does not exist")
	ErrPositionNotFound     = newError(KindState, "PositionNotFound", "position does not exist")
	ErrMarketNotActive      = newError(KindState, "MarketNotActive", "market is not active")
	ErrMarketExpired        = newError(KindState, "MarketExpired", "market betting window has closed")
	ErrAlreadyResolved      = newError(KindState, "AlreadyResolved", "market already resolved")
	ErrTooEarly             = newError(KindState, "TooEarly", "market cannot be resolved before its end time")
	ErrNotResolved          = newError(KindState, "NotResolved", "market is not resolved")
	ErrAlreadyClaimed       = newError(KindState, "AlreadyClaimed", "winnings already claimed")
	ErrNoWinningBet         = newError(KindState, "NoWinningBet", "position has no stake on the winning outcome")
	ErrFeesAlreadyCollected = newError(KindState, "FeesAlreadyCollected", "fees already collected for market")
	ErrDuplicateRequest     = newError(KindState, "DuplicateRequest", "request id already applied")
)

var ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "caller lacks the required role")

// Arithmetic errors.
var (
	ErrArithmeticOverflow = newError(KindArithmetic, "ArithmeticOverflow", "arithmetic overflow")
	ErrDivisionByZero     = newError(KindArithmetic, "DivisionByZero", "division by zero winning pool")
)

var ErrInvalidPayout = newError(KindPayout, "InvalidPayout", "payout exceeds the distributable pool")

var ErrInsufficientFunds = newError(KindFunds, "InsufficientFunds", "insufficient balance")

// KindOf returns the kind of the first settlement error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first settlement error in err's chain, or
// "Internal" for anything else.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}
