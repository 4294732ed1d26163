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
	ErrCodeInvalidPlaybook      ErrorCode = 103
	ErrCodeInvalidVersion       ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound     ErrorCode = 200
	ErrCodeQueryFailed      ErrorCode = 201
	ErrCodeTemplateNotFound ErrorCode = 202
	ErrCodeJournalFailed    ErrorCode = 203

	// Tradlet errors (400-499)
	ErrCodeTradletNotFound   ErrorCode = 400
	ErrCodeTradletInitFailed ErrorCode = 401
	ErrCodeTradletFault      ErrorCode = 402
	ErrCodeVersionMismatch   ErrorCode = 403
	ErrCodeDuplicateTradlet  ErrorCode = 404

	// Trading errors (500-599)
	ErrCodeOrderFailed     ErrorCode = 500
	ErrCodeCancelFailed    ErrorCode = 501
	ErrCodeOrderNotFound   ErrorCode = 502
	ErrCodeAccountRejected ErrorCode = 503

	// Group errors (600-699)
	ErrCodeGroupNotFound    ErrorCode = 600
	ErrCodeGroupInitFailed  ErrorCode = 601
	ErrCodeGroupStopped     ErrorCode = 602
	ErrCodeDuplicateGroup   ErrorCode = 603
	ErrCodeNoActiveTradlets ErrorCode = 604
)
