package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/engine"
	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/response"
	"github.com/prepdeck/prepdeck-backend/internal/service"
	"github.com/prepdeck/prepdeck-backend/internal/validator"
)

// ExamHandler exposes the timed exam endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// StartExam godoc
// POST /api/v1/exam/start
// Creates a new timed attempt and boots its session engine.
func (h *ExamHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.examService.StartExam(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrAttemptInProgress):
			response.Fail(c, http.StatusConflict, response.ErrAttemptInProgress)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, resp)
}

// ActiveAttempt godoc
// GET /api/v1/exam/active
// Returns a pointer to the user's resumable attempt or {none:true}.
func (h *ExamHandler) ActiveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ref, err := h.examService.ActiveAttempt(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, ref)
}

// ResumeExam godoc
// GET /api/v1/exam/resume/:session_id
// Rebuilds an interrupted attempt from its last persisted snapshot.
// "Nothing to resume" is {none:true}, not an error.
func (h *ExamHandler) ResumeExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.examService.ResumeExam(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNothingToResume):
			response.Success(c, http.StatusOK, gin.H{"none": true})
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, engine.ErrAttemptInProgress):
			response.Fail(c, http.StatusConflict, response.ErrAttemptInProgress)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, state)
}

// RecordAnswer godoc
// POST /api/v1/exam/:session_id/answer
// Upserts a selection; the cursor and time accounting are untouched.
func (h *ExamHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	progress, err := h.examService.RecordAnswer(c.Request.Context(), claims.UserID, sessionID, &req)
	if err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}

// Navigate godoc
// POST /api/v1/exam/:session_id/navigate
// Moves the cursor; elapsed time is merged into the question being left.
func (h *ExamHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	cursor, err := h.examService.Navigate(c.Request.Context(), claims.UserID, sessionID, *req.Index)
	if err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cursor": cursor})
}

// Autosave godoc
// POST /api/v1/exam/autosave
// Merges client-held answers and flushes a snapshot. Best-effort.
func (h *ExamHandler) Autosave(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.MergeAutosave(c.Request.Context(), claims.UserID, &req); err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ack": true})
}

// SubmitExam godoc
// POST /api/v1/exam/submit
// Finalizes the attempt exactly once; retries return the original result.
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resultID, err := h.examService.SubmitExam(c.Request.Context(), claims.UserID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrSubmitInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
		case errors.Is(err, service.ErrAttemptNotFound), errors.Is(err, service.ErrResultNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		default:
			// The attempt is back in ACTIVE; the client should retry.
			response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result_id": resultID})
}

// GetResult godoc
// GET /api/v1/exam/result/:result_id
func (h *ExamHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.examService.GetResult(c.Request.Context(), claims.UserID, resultID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		} else {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, res)
}

// History godoc
// GET /api/v1/exam/history?page&limit
func (h *ExamHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, total, err := h.examService.History(c.Request.Context(), claims.UserID, page, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": entries}, &response.Pagination{
		Page:       page,
		PerPage:    limit,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// failFromEngine maps engine/service errors to API codes.
func (h *ExamHandler) failFromEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotLive)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, engine.ErrNotActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotLive)
	case errors.Is(err, engine.ErrUnknownQuestion), errors.Is(err, engine.ErrInvalidOption):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
