package errors

// ErrorCode is a string representation of a specific failure category.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	CodeOK       ErrorCode = "OK"
	CodeUnknown  ErrorCode = "COMMON_000"
	CodeInternal ErrorCode = "COMMON_001"

	ErrCodeInvalidInput       ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeSerialization      ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeCacheError         ErrorCode = "COMMON_007"
)

// Pipeline error codes
const (
	// ErrCodeRecordParse marks an input line that is not a valid JSON sample.
	// Stream runners skip such lines; this code never aborts a stream.
	ErrCodeRecordParse ErrorCode = "PIPE_001"

	// ErrCodeMarkerStructure marks answer / supporting_paragraph text whose
	// @content<N>@ markers reference a document absent from the sample.
	ErrCodeMarkerStructure ErrorCode = "PIPE_002"

	// ErrCodeSpanNotFound marks a fragment that could not be located inside
	// its container at any confidence above zero.
	ErrCodeSpanNotFound ErrorCode = "PIPE_003"

	// ErrCodeBudgetTooSmall marks a passage length budget smaller than the
	// document title; selection degrades rather than fails.
	ErrCodeBudgetTooSmall ErrorCode = "PIPE_004"

	// ErrCodeStageFailed marks a pipeline stage failure on one sample.
	ErrCodeStageFailed ErrorCode = "PIPE_005"
)

// Infrastructure error codes
const (
	ErrCodeStreamIO       ErrorCode = "INFRA_001"
	ErrCodeMessagingError ErrorCode = "INFRA_002"
	ErrCodeObjectStorage  ErrorCode = "INFRA_003"
	ErrCodeConfigInvalid  ErrorCode = "INFRA_004"
)
