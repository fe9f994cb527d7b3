package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// examURI addresses one exam of the catalog.
type examURI struct {
	ExamCode string `uri:"exam_code" binding:"required,max=64"`
}

// mockQuery selects the mock form of an exam. Empty means the default form.
type mockQuery struct {
	Mock string `form:"mock" binding:"omitempty,max=64"`
}

// attemptURI addresses one scored attempt.
type attemptURI struct {
	AttemptID string `uri:"attempt_id" binding:"required,max=128"`
}

// PaperResponse is the exam header and questions together with the session state.
type PaperResponse struct {
	Exam      model.ExamInfo     `json:"exam"`
	Questions []model.Question   `json:"questions"`
	State     model.SessionState `json:"state"`
}

// StudentPortalHandler handles student-facing endpoints (catalog, exam taking, attempts).
type StudentPortalHandler struct {
	catalogService *service.CatalogService
	sessionService *service.ExamSessionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	catalogService *service.CatalogService,
	sessionService *service.ExamSessionService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		catalogService: catalogService,
		sessionService: sessionService,
	}
}

// GetCatalog godoc
// GET /api/v1/student/catalog
// Returns the exams offered to the student. Stale data is served with a flag.
func (h *StudentPortalHandler) GetCatalog(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.catalogService.Catalog(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessCached(c, http.StatusOK, gin.H{"exams": view.Data}, view.Stale, string(view.Source))
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_code/paper?mock=
// Opens or resumes the student's session and returns the paper.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	claims, examCode, mock, ok := h.bindExam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.Open(c.Request.Context(), claims.UserID, examCode, mock)
	if err != nil {
		fail(c, err)
		return
	}

	info, questions := sess.Paper()
	response.Success(c, http.StatusOK, PaperResponse{
		Exam:      info,
		Questions: questions,
		State:     sess.Snapshot(),
	})
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_code/state?mock=
// Returns the rendered state of the live session.
func (h *StudentPortalHandler) GetExamState(c *gin.Context) {
	claims, examCode, mock, ok := h.bindExam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.Get(claims.UserID, examCode, mock)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, sess.Snapshot())
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_code/submit?mock=
// Submits the live session for scoring. A failed submission keeps the session.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims, examCode, mock, ok := h.bindExam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.Get(claims.UserID, examCode, mock)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), sess)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// AbandonExam godoc
// DELETE /api/v1/student/session
// Drops the live session and its countdown so another exam can be started.
func (h *StudentPortalHandler) AbandonExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessionService.Abandon(c.Request.Context(), claims.UserID); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the student's recent scored attempts.
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.sessionService.ListAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.AttemptReceipt{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the scored review of one attempt.
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var uri attemptURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	detail, err := h.sessionService.GetAttempt(c.Request.Context(), claims.UserID, uri.AttemptID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

func (h *StudentPortalHandler) bindExam(c *gin.Context) (*service.Claims, string, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, "", "", false
	}
	examCode, mock, ok := bindExamSelection(c)
	return claims, examCode, mock, ok
}

// bindExamSelection reads the exam code and mock form of the request.
func bindExamSelection(c *gin.Context) (string, string, bool) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return "", "", false
	}
	var q mockQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return "", "", false
	}
	return uri.ExamCode, q.Mock, true
}

// fail renders err with its mapped status and code.
func fail(c *gin.Context, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.FailWithMessage(c, e.Status, e.Code, e.message())
}
