// Counsel HTTP handlers.
//
// This file exposes the counsel resource:
//   - POST /api/counsels/summary       (submit for analysis; create or retry)
//   - GET  /api/counsels               (cursor-paginated list)
//   - GET  /api/counsels/{id}          (detail)
//   - POST /api/counsels/{id}/question (follow-up Q&A on a completed summary)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Analysis itself is
// asynchronous; submit returns 202 and the outcome arrives on the event
// stream.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/http/middleware"
	"github.com/tbourn/go-counsel-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// CounselService defines counsel lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CounselService interface {
	// Create inserts a new pending counsel and returns its id.
	Create(ctx context.Context, userID uint64, in services.CounselInput) (uint64, error)
	// Retry resets a failed counsel back to pending under the same id.
	Retry(ctx context.Context, userID, counselID uint64, in services.CounselInput) (uint64, error)
	// Exists reports whether any counsel with the id exists.
	Exists(ctx context.Context, counselID uint64) (bool, error)
	// Get returns a counsel owned by userID.
	Get(ctx context.Context, userID, counselID uint64) (*domain.Counsel, error)
	// List returns one cursor page of the user's counsels.
	List(ctx context.Context, userID, cursorID uint64, size int) (*services.CounselPage, error)
}

// AnalysisRunner defines the analysis operations consumed by HTTP handlers:
// fire-and-forget dispatch plus the synchronous follow-up question.
type AnalysisRunner interface {
	// Dispatch starts a background analysis run for a pending counsel.
	Dispatch(counselID uint64, chat, date string)
	// AnswerQuestion answers a follow-up question about a completed counsel.
	AnswerQuestion(ctx context.Context, userID, counselID uint64, question string) (string, error)
}

// IdempotencyStore resolves and records idempotency keys for submissions.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID uint64, key string) (counselID uint64, found bool, err error)
	Save(ctx context.Context, userID uint64, key string, counselID uint64, status int) error
}

//
// Handler wiring
//

// CounselHandlers groups the counsel endpoints. It depends on abstract
// service interfaces to keep transport concerns separate from business
// logic.
type CounselHandlers struct {
	counsels CounselService
	analysis AnalysisRunner
	idem     IdempotencyStore
}

// NewCounselHandlers constructs CounselHandlers bound to the given
// services. idem may be nil to disable replay detection.
func NewCounselHandlers(counsels CounselService, analysis AnalysisRunner, idem IdempotencyStore) *CounselHandlers {
	return &CounselHandlers{counsels: counsels, analysis: analysis, idem: idem}
}

//
// DTOs
//

// SubmitCounselRequest is the JSON payload for submitting a consultation.
// When CounselID is non-zero the submission retries that failed counsel
// instead of creating a new one.
type SubmitCounselRequest struct {
	// CounselID targets an existing failed counsel for retry.
	CounselID uint64 `json:"counselId" example:"42"`
	// Date is the consultation date (yyyy-MM-dd).
	Date string `json:"date" binding:"required" example:"2026-08-21"`
	// Chat is the raw consultation transcript.
	Chat string `json:"chat" binding:"required"`
	// Title optionally names the record.
	Title string `json:"title" example:"로밍 요금 문의"`
}

// SubmitCounselResponse acknowledges an accepted submission.
type SubmitCounselResponse struct {
	CounselID uint64 `json:"counselId" example:"42"`
	Status    string `json:"status" example:"PENDING"`
}

// AskQuestionRequest is the JSON payload for a follow-up question.
type AskQuestionRequest struct {
	Question string `json:"question" binding:"required" example:"위약금은 얼마인가요?"`
}

// AskQuestionResponse carries the normalized answer.
type AskQuestionResponse struct {
	Answer string `json:"answer"`
}

// CounselListResponse wraps a cursor page of counsels.
type CounselListResponse struct {
	Counsels   []domain.Counsel `json:"counsels"`
	NextCursor uint64           `json:"nextCursor"`
	HasNext    bool             `json:"hasNext"`
}

//
// Helpers
//

// requireUser resolves the authenticated user id or fails the request.
func requireUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return 0, false
	}
	return uid, true
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "counsel id must be a positive integer")
		return 0, false
	}
	return id, true
}

// serviceError maps a service sentinel to an HTTP failure. Unrecognized
// errors become a 500 with the given fallback code. Returns false when err
// is nil.
func serviceError(c *gin.Context, err error, fallback string) bool {
	switch err {
	case nil:
		return false
	case services.ErrCounselNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "counsel not found")
	case services.ErrForbidden:
		fail(c, http.StatusForbidden, ErrCodeForbidden, "counsel belongs to another user")
	case services.ErrAnalysisInProgress:
		fail(c, http.StatusConflict, ErrCodeAnalysisInProgress, "analysis already in progress")
	case services.ErrAlreadyCompleted:
		fail(c, http.StatusConflict, ErrCodeAlreadyCompleted, "counsel already completed")
	case services.ErrInvalidDate:
		fail(c, http.StatusBadRequest, ErrCodeInvalidDate, "date must be yyyy-MM-dd")
	case services.ErrUserNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case services.ErrMalformedSummary:
		fail(c, http.StatusConflict, ErrCodeConflict, "counsel has no completed summary")
	case services.ErrAnalysisQuestionFailed:
		fail(c, http.StatusBadGateway, ErrCodeQuestionFailed, "question could not be answered")
	default:
		fail(c, http.StatusInternalServerError, fallback, err.Error())
	}
	return true
}

//
// Handlers
//

// SubmitCounsel godoc
// @ID          submitCounsel
// @Summary     Submit a consultation for analysis
// @Description Creates a pending counsel (or retries a failed one when counselId is set) and starts asynchronous analysis. The outcome is announced on the event stream.
// @Tags        Counsels
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Dedupe key for safe retries"
// @Param       body             body    handlers.SubmitCounselRequest  true  "Submission payload"
//
// @Success     202  {object}  handlers.SubmitCounselResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     409  {object}  handlers.ErrorResponse  "Already pending or completed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/counsels/summary [post]
func (h *CounselHandlers) SubmitCounsel(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}

	var req SubmitCounselRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Chat) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date and chat required")
		return
	}
	ctx := c.Request.Context()

	// Replay: return the previously accepted counsel without re-dispatching.
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && h.idem != nil && middleware.IsReplay(c) {
		if prior, found, err := h.idem.Lookup(ctx, uid, key); err == nil && found {
			ok(c, http.StatusAccepted, SubmitCounselResponse{CounselID: prior, Status: string(domain.StatusPending)})
			return
		}
	}

	in := services.CounselInput{Date: req.Date, Chat: req.Chat, Title: req.Title}

	// A counselId referencing a record that exists is a retry; a stale or
	// absent one falls back to creating a fresh counsel.
	retry := false
	if req.CounselID != 0 {
		found, err := h.counsels.Exists(ctx, req.CounselID)
		if serviceError(c, err, ErrCodeInternal) {
			return
		}
		retry = found
	}

	var (
		counselID uint64
		err       error
	)
	if retry {
		counselID, err = h.counsels.Retry(ctx, uid, req.CounselID, in)
	} else {
		counselID, err = h.counsels.Create(ctx, uid, in)
	}
	if serviceError(c, err, ErrCodeCreateFailed) {
		return
	}

	if hasKey && h.idem != nil {
		// Best effort: a failed record only costs replay detection.
		_ = h.idem.Save(ctx, uid, key, counselID, http.StatusAccepted)
	}

	h.analysis.Dispatch(counselID, req.Chat, req.Date)
	ok(c, http.StatusAccepted, SubmitCounselResponse{CounselID: counselID, Status: string(domain.StatusPending)})
}

// ListCounsels godoc
// @ID          listCounsels
// @Summary     List counsels (cursor-paginated)
// @Description Returns one page of the user's counsels, newest first. Pass the returned nextCursor to fetch the following page.
// @Tags        Counsels
// @Produce     json
//
// @Param       cursorId  query  int  false  "Return counsels with id below this value"  minimum(1)
// @Param       size    query  int  false  "Items per page"  minimum(1) maximum(100) default(10)
//
// @Success     200  {object}  handlers.CounselListResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/counsels [get]
func (h *CounselHandlers) ListCounsels(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}

	cursor, _ := strconv.ParseUint(c.Query("cursorId"), 10, 64)
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	if size < 1 {
		size = 1
	}
	if size > 100 {
		size = 100
	}

	page, err := h.counsels.List(c.Request.Context(), uid, cursor, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if page.Items == nil {
		page.Items = []domain.Counsel{}
	}
	ok(c, http.StatusOK, CounselListResponse{
		Counsels:   page.Items,
		NextCursor: page.NextCursorID,
		HasNext:    page.HasNext,
	})
}

// GetCounsel godoc
// @ID          getCounsel
// @Summary     Get one counsel
// @Description Returns the counsel with the given id, including the stored summary when analysis has completed.
// @Tags        Counsels
// @Produce     json
//
// @Param       id  path  int  true  "Counsel ID"  minimum(1)
//
// @Success     200  {object}  domain.Counsel
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Counsel not found"
// @Router      /api/counsels/{id} [get]
func (h *CounselHandlers) GetCounsel(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathID(c)
	if !valid {
		return
	}

	counsel, err := h.counsels.Get(c.Request.Context(), uid, id)
	if serviceError(c, err, ErrCodeInternal) {
		return
	}
	ok(c, http.StatusOK, counsel)
}

// AskQuestion godoc
// @ID          askQuestion
// @Summary     Ask a follow-up question
// @Description Answers a question about a completed counsel's summary and appends the exchange to the stored document.
// @Tags        Counsels
// @Accept      json
// @Produce     json
//
// @Param       id    path  int  true  "Counsel ID"  minimum(1)
// @Param       body  body  handlers.AskQuestionRequest  true  "Question payload"
//
// @Success     200  {object}  handlers.AskQuestionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Counsel not found"
// @Failure     409  {object}  handlers.ErrorResponse  "No completed summary"
// @Failure     502  {object}  handlers.ErrorResponse  "Question failed"
// @Router      /api/counsels/{id}/question [post]
func (h *CounselHandlers) AskQuestion(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathID(c)
	if !valid {
		return
	}

	var req AskQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	answer, err := h.analysis.AnswerQuestion(c.Request.Context(), uid, id, strings.TrimSpace(req.Question))
	if serviceError(c, err, ErrCodeQuestionFailed) {
		return
	}
	ok(c, http.StatusOK, AskQuestionResponse{Answer: answer})
}
