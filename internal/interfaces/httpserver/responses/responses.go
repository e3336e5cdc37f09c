package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-server/internal/utils/platformerrors"
)

type ErrorResponse struct {
	Code          string `json:"code"` // UUID from PlatformError
	Error         string `json:"error"`
	ErrorInstance error  `json:"-"`
	RequestID     string `json:"request_id,omitempty"`
}

// HandleError handles domain errors and returns appropriate HTTP responses
// The message parameter is used directly as the error message in the response
// Status code is automatically determined from the error type
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		statusCode := platformerrors.ErrorTypeToHTTPStatus(domainErr.GetErrorType())

		errResp := ErrorResponse{
			Code:          domainErr.GetUUID(),
			Error:         message,
			ErrorInstance: domainErr,
			RequestID:     domainErr.GetRequestID(),
		}

		reqCtx.AbortWithStatusJSON(statusCode, errResp)
		return
	}

	errResp := ErrorResponse{
		Error:         message,
		ErrorInstance: err,
	}
	reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
}

// HandleErrorWithStatus handles domain errors with a custom status code
// Use this when you need to override the default status code mapping
func HandleErrorWithStatus(reqCtx *gin.Context, statusCode int, err error, message string) {
	errResp := ErrorResponse{
		Error:         message,
		ErrorInstance: err,
	}

	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		errResp.Code = domainErr.GetUUID()
		errResp.RequestID = domainErr.GetRequestID()
	}

	reqCtx.AbortWithStatusJSON(statusCode, errResp)
}

// HandleNewError creates a new typed error at the route layer and handles it
// This is a convenience function for route-level validations and errors
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	ctx := reqCtx.Request.Context()
	err := platformerrors.NewError(ctx, platformerrors.LayerRoute, errorType, message, nil, uuid)

	statusCode := platformerrors.ErrorTypeToHTTPStatus(err.GetErrorType())

	errResp := ErrorResponse{
		Code:          err.GetUUID(),
		Error:         message,
		ErrorInstance: err,
		RequestID:     err.GetRequestID(),
	}

	reqCtx.AbortWithStatusJSON(statusCode, errResp)
}

// GeneralResponse wraps a single result payload.
type GeneralResponse[T any] struct {
	Data T `json:"data"`
}

// ListResponse wraps a collection payload.
type ListResponse[T any] struct {
	Total int64 `json:"total"`
	Data  []T   `json:"data"`
}

// OK writes a 200 envelope around data.
func OK[T any](reqCtx *gin.Context, data T) {
	reqCtx.JSON(http.StatusOK, GeneralResponse[T]{Data: data})
}

// Created writes a 201 envelope around data.
func Created[T any](reqCtx *gin.Context, data T) {
	reqCtx.JSON(http.StatusCreated, GeneralResponse[T]{Data: data})
}
