package model

// Коды ошибок для ErrorResponse
const (
	ErrCodeBadRequest   = 40001
	ErrCodeValidation   = 40002
	ErrCodeTokenInvalid = 40101
	ErrCodeTokenExpired = 40102
	ErrCodeUnauthorized = 40103
	ErrCodeNotFound     = 40401
	ErrCodeTooMany      = 42901
	ErrCodeBadGateway   = 50201
	ErrCodeTimeout      = 50401
	ErrCodeUnavailable  = 50301
	ErrCodeInternal     = 50001
)

// ErrorResponse стандартный ответ об ошибке.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
