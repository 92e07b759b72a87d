package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidTradingWindow ErrorCode = 103

	// Tick and feed errors (200-299)
	ErrCodeInvalidTick      ErrorCode = 200
	ErrCodeParseError       ErrorCode = 201
	ErrCodeFeedDisconnected ErrorCode = 202
	ErrCodeFeedExhausted    ErrorCode = 203

	// Bar series errors (300-399)
	ErrCodeOutOfOrderBar    ErrorCode = 300
	ErrCodeInstrumentUnknown ErrorCode = 301

	// Indicator errors (400-499)
	ErrCodeInsufficientData      ErrorCode = 400
	ErrCodeIndicatorCalculation  ErrorCode = 401
	ErrCodeInvalidPeriod         ErrorCode = 402

	// Trading errors (500-599)
	ErrCodeOrderDispatchFailed  ErrorCode = 500
	ErrCodePositionQueryFailed  ErrorCode = 501
	ErrCodeAccountQueryFailed   ErrorCode = 502
	ErrCodePriceQueryFailed     ErrorCode = 503

	// Bar log errors (600-699)
	ErrCodeBarLogInitFailed  ErrorCode = 600
	ErrCodeBarLogWriteFailed ErrorCode = 601
)
