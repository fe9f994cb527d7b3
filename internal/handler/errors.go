package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-session/internal/exam"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/scoring"
	"github.com/stemsi/exstem-session/internal/service"
)

// apiError is the HTTP rendition of a domain error.
type apiError struct {
	Status  int
	Code    response.ErrCode
	Message string
}

var errorTable = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	// Navigation rejections.
	{exam.ErrBranchNotChosen, http.StatusUnprocessableEntity, response.ErrBranchNotChosen},
	{exam.ErrConfidenceRequired, http.StatusUnprocessableEntity, response.ErrConfidenceRequired},
	{exam.ErrSkipBranchParent, http.StatusUnprocessableEntity, response.ErrSkipBranchParent},
	{exam.ErrNoQuestions, http.StatusUnprocessableEntity, response.ErrNoQuestions},
	{exam.ErrInvalidPosition, http.StatusBadRequest, response.ErrInvalidPosition},
	{exam.ErrUnsupportedAction, http.StatusBadRequest, response.ErrUnsupportedAction},
	{exam.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
	{exam.ErrInvalidConfidence, http.StatusBadRequest, response.ErrInvalidConfidence},

	// Session lifecycle.
	{exam.ErrSubmitInFlight, http.StatusConflict, response.ErrSubmitInFlight},
	{exam.ErrTimeUp, http.StatusConflict, response.ErrTimeUp},
	{exam.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
	{exam.ErrSessionCancelled, http.StatusConflict, response.ErrSessionCancelled},
	{service.ErrNoActiveSession, http.StatusNotFound, response.ErrNoActiveSession},

	// Catalog.
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrMockTestNotFound, http.StatusNotFound, response.ErrMockTestNotFound},
	{service.ErrExamNotEligible, http.StatusForbidden, response.ErrExamNotEligible},
	{model.ErrInvalidQuestionSet, http.StatusBadGateway, response.ErrInvalidPaper},
	{service.ErrUpstreamUnavailable, http.StatusServiceUnavailable, response.ErrUpstreamUnavailable},

	// Attempts.
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
}

// classify maps an error to its HTTP status and code. Errors from the scoring
// service keep the server's message.
func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return apiError{Status: e.status, Code: e.code}
		}
	}

	var se *scoring.Error
	if errors.As(err, &se) {
		return apiError{Status: http.StatusBadGateway, Code: response.ErrScoringFailed, Message: se.Message}
	}
	return apiError{Status: http.StatusInternalServerError, Code: response.ErrInternal}
}

// message returns the user-facing text of the error.
func (e apiError) message() string {
	if e.Message != "" {
		return e.Message
	}
	return response.GetMessage(e.Code)
}
