package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User module errors
// 12000-12999: Problem & reference dataset errors
// 13000-13999: Submission & evaluation errors
// 16000-16999: Admin & Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage errors (10400-10499)
	StorageError ErrorCode = 10400
	InvalidFile  ErrorCode = 10401
	FileTooLarge ErrorCode = 10402

	// ========== User Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005
	LoginTooFrequently    ErrorCode = 11006

	// Registration (11100-11199)
	UsernameAlreadyExists ErrorCode = 11100
	InvalidUsername       ErrorCode = 11102
	InvalidPassword       ErrorCode = 11104

	// User operations (11200-11299)
	UserNotFound        ErrorCode = 11200
	UserCreateFailed    ErrorCode = 11201
	UserUpdateFailed    ErrorCode = 11202
	UserDeleteFailed    ErrorCode = 11203
	RatingUpdateFailed  ErrorCode = 11204
	PasswordResetFailed ErrorCode = 11205

	// ========== Problem Module Errors (12000-12999) ==========

	// Problem basic (12000-12099)
	ProblemNotFound     ErrorCode = 12000
	ProblemCreateFailed ErrorCode = 12002

	// Reference dataset (12100-12199)
	ReferenceAnswerNotFound ErrorCode = 12100
	DatasetUnavailable      ErrorCode = 12101

	// ========== Submission & Evaluation Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	SubmitTooFrequently    ErrorCode = 13004

	// Evaluation (13100-13199)
	EvaluationFailed         ErrorCode = 13100
	TranscriptionFailed      ErrorCode = 13101
	ComparisonFailed         ErrorCode = 13102
	ModelProviderUnavailable ErrorCode = 13103

	// ========== Admin & Permission Errors (16000-16999) ==========

	// Permission (16000-16099)
	PermissionDenied       ErrorCode = 16000
	InsufficientPermission ErrorCode = 16001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Storage
	StorageError: "File storage failed",
	InvalidFile:  "Invalid file",
	FileTooLarge: "File is too large",

	// User - Authentication
	InvalidCredentials:    "Invalid credentials",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	LoginTooFrequently:    "Too many failed logins, please try again later",

	// User - Registration
	UsernameAlreadyExists: "Username already exists",
	InvalidUsername:       "Invalid username format",
	InvalidPassword:       "Invalid password format",

	// User - Operations
	UserNotFound:        "User not found",
	UserCreateFailed:    "Failed to create user",
	UserUpdateFailed:    "Failed to update user",
	UserDeleteFailed:    "Failed to delete user",
	RatingUpdateFailed:  "Failed to update rating",
	PasswordResetFailed: "Password reset failed",

	// Problem
	ProblemNotFound:     "Problem not found",
	ProblemCreateFailed: "Failed to create problem",

	// Reference dataset
	ReferenceAnswerNotFound: "No reference answer found for problem",
	DatasetUnavailable:      "Reference dataset unavailable",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	SubmitTooFrequently:    "Submitting too frequently, please wait",

	// Evaluation
	EvaluationFailed:         "Model processing error",
	TranscriptionFailed:      "Transcription stage failed",
	ComparisonFailed:         "Comparison stage failed",
	ModelProviderUnavailable: "Model provider temporarily unavailable",

	// Permission
	PermissionDenied:       "Permission denied",
	InsufficientPermission: "Insufficient permission",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == InvalidCredentials, c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c >= 16000 && c < 16100: // Permission errors
		return 403
	case c == NotFound, c == RecordNotFound, c == UserNotFound, c == ProblemNotFound,
		c == ReferenceAnswerNotFound, c == SubmissionNotFound:
		return 404
	case c == UsernameAlreadyExists, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently, c == LoginTooFrequently:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidFile, c == FileTooLarge, c == InvalidUsername, c == InvalidPassword:
		return 400
	default:
		return 500
	}
}
