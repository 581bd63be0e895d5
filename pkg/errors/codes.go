package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are "<MODULE>_<NNN>"; the module prefix groups related failures.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel pseudo-codes returned by GetCode.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeStorageError       ErrorCode = "COMMON_014"
	ErrCodeMessagingError     ErrorCode = "COMMON_015"
)

// Protonation Module Error Codes
const (
	// ErrCodeEngineFailure: the protonation engine exited negatively, could
	// not be started, or timed out.  Fatal to one structure only.
	ErrCodeEngineFailure ErrorCode = "PRT_001"
	// ErrCodeUnreadableOutput: the engine succeeded but nothing parseable or
	// no new hydrogens came back.
	ErrCodeUnreadableOutput ErrorCode = "PRT_002"
	// ErrCodeOrphanPartner: a bonded heavy atom has no positional
	// counterpart in the original structure.
	ErrCodeOrphanPartner ErrorCode = "PRT_003"
	// ErrCodeNoPartnerFound: the hydrogen's residue has no heavy atom.
	ErrCodeNoPartnerFound ErrorCode = "PRT_004"
	// ErrCodePartnerTooFar: the nearest heavy atom is beyond bonding range.
	ErrCodePartnerTooFar  ErrorCode = "PRT_005"
	ErrCodeEngineTimeout  ErrorCode = "PRT_006"
	ErrCodeStructureParse ErrorCode = "PRT_007"
	ErrCodeStructureWrite ErrorCode = "PRT_008"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeEngineFailure:    http.StatusBadGateway,
	ErrCodeUnreadableOutput: http.StatusUnprocessableEntity,
	ErrCodeOrphanPartner:    http.StatusUnprocessableEntity,
	ErrCodeNoPartnerFound:   http.StatusUnprocessableEntity,
	ErrCodePartnerTooFar:    http.StatusUnprocessableEntity,
	ErrCodeEngineTimeout:    http.StatusGatewayTimeout,
	ErrCodeStructureParse:   http.StatusBadRequest,
	ErrCodeStructureWrite:   http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeEngineFailure:    "protonation engine failed",
	ErrCodeUnreadableOutput: "could not read the structure generated by the protonation engine",
	ErrCodeOrphanPartner:    "hydrogen bonded to an atom unknown to the original structure",
	ErrCodeNoPartnerFound:   "no heavy atom found for hydrogen",
	ErrCodePartnerTooFar:    "nearest heavy atom too far from hydrogen",
	ErrCodeEngineTimeout:    "protonation engine timed out",
	ErrCodeStructureParse:   "failed to parse structure",
	ErrCodeStructureWrite:   "failed to write structure",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
