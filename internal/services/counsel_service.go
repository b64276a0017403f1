// Package services – CounselService
//
// This file implements the CounselService, which owns counsel records and
// their status state machine (PENDING → COMPLETED | FAILED). It enforces
// ownership rules, the retry policy, and drives terminal transitions with
// conditional writes so that a counsel reaches a terminal state exactly once
// per dispatch. The follow-up Q&A append is a read-modify-write on the
// stored summary document and is serialized per counsel id.
//
// Observability: the mutating methods are OpenTelemetry-instrumented; spans
// include counsel/user identifiers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-counsel-backend/internal/domain"
	"github.com/tbourn/go-counsel-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// counselDateLayout is the accepted wire format for counsel dates.
const counselDateLayout = "2006-01-02"

// CounselInput is the payload for creating or retrying a counsel.
type CounselInput struct {
	// Date is the consultation date in yyyy-MM-dd form.
	Date string
	// Chat is the raw consultation transcript.
	Chat string
	// Title optionally names the record.
	Title string
}

// CounselPage is one page of a cursor-paginated counsel list.
type CounselPage struct {
	Items        []domain.Counsel
	NextCursorID uint64
	HasNext      bool
}

// CounselService provides counsel lifecycle operations: creation, retry,
// reads, terminal transitions, and the Q&A append.
type CounselService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// mu guards locks; locks serializes the summary read-modify-write per
	// counsel id.
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewCounselService constructs a CounselService.
func NewCounselService(db *gorm.DB) *CounselService {
	return &CounselService{
		DB:    db,
		locks: make(map[uint64]*sync.Mutex),
	}
}

// Create inserts a new counsel owned by userID with status PENDING and
// returns its id. The date must parse as yyyy-MM-dd and the owner must
// exist.
func (s *CounselService) Create(ctx context.Context, userID uint64, in CounselInput) (uint64, error) {
	tr := otel.Tracer("services/CounselService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	date, err := parseCounselDate(in.Date)
	if err != nil {
		return 0, err
	}
	ok, err := repo.UserExists(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUserNotFound
	}

	c := &domain.Counsel{
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		CounselDate: date,
		Content:     in.Chat,
		Status:      domain.StatusPending,
	}
	if err := repo.CreateCounsel(ctx, s.DB, c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

// Retry re-submits a FAILED counsel under the same id: payload fields are
// overwritten and the status returns to PENDING. Ownership is enforced, a
// PENDING counsel is rejected with ErrAnalysisInProgress, and a COMPLETED
// one with ErrAlreadyCompleted.
func (s *CounselService) Retry(ctx context.Context, userID, counselID uint64, in CounselInput) (uint64, error) {
	tr := otel.Tracer("services/CounselService")
	ctx, span := tr.Start(ctx, "Retry",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("counsel.id", int64(counselID)),
		),
	)
	defer span.End()

	date, err := parseCounselDate(in.Date)
	if err != nil {
		return 0, err
	}

	c, err := repo.GetCounsel(ctx, s.DB, counselID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrCounselNotFound
	}
	if err != nil {
		return 0, err
	}
	if c.UserID != userID {
		return 0, ErrForbidden
	}

	switch c.Status {
	case domain.StatusPending:
		return 0, ErrAnalysisInProgress
	case domain.StatusCompleted:
		return 0, ErrAlreadyCompleted
	}

	rows, err := repo.ResetCounselForRetry(ctx, s.DB, counselID, strings.TrimSpace(in.Title), in.Chat, date)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		// Lost a race with a concurrent retry of the same counsel.
		return 0, ErrAnalysisInProgress
	}
	return counselID, nil
}

// Exists reports whether a counsel with the given id exists at all,
// regardless of owner. Used to decide between create and retry on submit.
func (s *CounselService) Exists(ctx context.Context, counselID uint64) (bool, error) {
	if counselID == 0 {
		return false, nil
	}
	return repo.CounselExists(ctx, s.DB, counselID)
}

// Get returns the counsel with the given id if it belongs to userID.
func (s *CounselService) Get(ctx context.Context, userID, counselID uint64) (*domain.Counsel, error) {
	c, err := repo.GetCounsel(ctx, s.DB, counselID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCounselNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

// List returns one page of the user's counsels ordered by id descending,
// starting below cursorID when it is non-zero.
func (s *CounselService) List(ctx context.Context, userID, cursorID uint64, size int) (*CounselPage, error) {
	if size <= 0 {
		size = 10
	}
	items, err := repo.ListCounselsCursor(ctx, s.DB, userID, cursorID, size)
	if err != nil {
		return nil, err
	}
	page := &CounselPage{Items: items}
	if len(items) > 0 {
		page.NextCursorID = items[len(items)-1].ID
		page.HasNext = len(items) == size
	}
	return page, nil
}

// Complete applies the COMPLETED terminal transition, storing the raw AI
// envelope and category, and returns the event the caller must publish.
// A counsel that is missing or already terminal yields a nil event and no
// error: repeat terminal calls are a harmless no-op and must not re-fire a
// notification.
func (s *CounselService) Complete(ctx context.Context, counselID uint64, summaryJSON string, category domain.CounselCategory) (*domain.StatusChangedEvent, error) {
	tr := otel.Tracer("services/CounselService")
	ctx, span := tr.Start(ctx, "Complete",
		trace.WithAttributes(attribute.Int64("counsel.id", int64(counselID))),
	)
	defer span.End()

	rows, err := repo.MarkCounselCompleted(ctx, s.DB, counselID, summaryJSON, category)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, nil
	}
	return s.eventFor(ctx, counselID)
}

// Fail applies the FAILED terminal transition, discarding any partial
// result. Same no-op contract as Complete.
func (s *CounselService) Fail(ctx context.Context, counselID uint64) (*domain.StatusChangedEvent, error) {
	tr := otel.Tracer("services/CounselService")
	ctx, span := tr.Start(ctx, "Fail",
		trace.WithAttributes(attribute.Int64("counsel.id", int64(counselID))),
	)
	defer span.End()

	rows, err := repo.MarkCounselFailed(ctx, s.DB, counselID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, nil
	}
	return s.eventFor(ctx, counselID)
}

// AppendQuestionAnswer appends a {question, answer} pair to the
// additional_questions list inside the stored summary document, without
// changing the status. The read-modify-write is serialized per counsel id
// so concurrent appends for the same counsel cannot lose an update.
func (s *CounselService) AppendQuestionAnswer(ctx context.Context, userID, counselID uint64, question, answer string) error {
	lock := s.lockFor(counselID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.Get(ctx, userID, counselID)
	if err != nil {
		return err
	}
	if c.SummaryJSON == nil || *c.SummaryJSON == "" {
		return ErrMalformedSummary
	}

	updated, err := appendToSummary(*c.SummaryJSON, question, answer)
	if err != nil {
		return err
	}
	return repo.UpdateCounselSummary(ctx, s.DB, counselID, updated)
}

// eventFor loads the post-transition row and builds the notification event.
func (s *CounselService) eventFor(ctx context.Context, counselID uint64) (*domain.StatusChangedEvent, error) {
	c, err := repo.GetCounsel(ctx, s.DB, counselID)
	if err != nil {
		return nil, err
	}
	return &domain.StatusChangedEvent{
		UserID:    c.UserID,
		CounselID: c.ID,
		Status:    c.Status,
	}, nil
}

// lockFor returns the append mutex for a counsel id, creating it on first
// use. Lock entries are never reclaimed; the per-process set of counsels a
// user asks follow-ups about stays small.
func (s *CounselService) lockFor(counselID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[counselID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[counselID] = m
	}
	return m
}

// parseCounselDate parses the yyyy-MM-dd wire format.
func parseCounselDate(raw string) (time.Time, error) {
	d, err := time.Parse(counselDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// appendToSummary locates the summary object inside the envelope
// (data.summary, falling back to data itself), appends {question, answer} to
// its additional_questions list (creating the list if absent or of the
// wrong shape), and re-serializes the whole document.
func appendToSummary(summaryJSON, question, answer string) (string, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(summaryJSON), &root); err != nil {
		return "", ErrMalformedSummary
	}
	data, ok := root["data"].(map[string]any)
	if !ok {
		return "", ErrMalformedSummary
	}

	target := data
	if raw, present := data["summary"]; present {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			return "", ErrMalformedSummary
		}
		target = obj
	}

	list, _ := target["additional_questions"].([]any)
	list = append(list, map[string]any{
		"question": question,
		"answer":   answer,
	})
	target["additional_questions"] = list

	out, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
