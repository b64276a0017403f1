// Package services – AnalysisService
//
// This file implements the asynchronous analysis pipeline. Dispatch runs
// the external AI call in a background goroutine detached from the request
// context, drives the counsel to exactly one terminal state, and publishes
// the resulting status event to the notification hub. AnswerQuestion is
// the synchronous follow-up Q&A path against an already completed summary.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-counsel-backend/internal/ai"
	"github.com/tbourn/go-counsel-backend/internal/domain"
)

// AIClient is the slice of the analysis-service client used here.
type AIClient interface {
	Analyze(ctx context.Context, chat, date string) (string, error)
	Ask(ctx context.Context, question string, summary json.RawMessage) (string, error)
}

// StatusPublisher receives counsel status events for fan-out.
type StatusPublisher interface {
	PublishStatus(ev *domain.StatusChangedEvent)
}

// AnalysisService orchestrates AI analysis runs and follow-up questions.
type AnalysisService struct {
	// Counsels owns the counsel state machine.
	Counsels *CounselService
	// AI is the external analysis client.
	AI AIClient
	// Hub receives status events. Optional; nil disables notifications.
	Hub StatusPublisher

	// AnalyzeTimeout bounds one background analysis run. Default 2m.
	AnalyzeTimeout time.Duration
	// QuestionTimeout bounds one follow-up question. Default 60s.
	QuestionTimeout time.Duration
}

// NewAnalysisService constructs an AnalysisService with default timeouts.
func NewAnalysisService(counsels *CounselService, client AIClient, hub StatusPublisher) *AnalysisService {
	return &AnalysisService{
		Counsels:        counsels,
		AI:              client,
		Hub:             hub,
		AnalyzeTimeout:  2 * time.Minute,
		QuestionTimeout: 60 * time.Second,
	}
}

// Dispatch starts a background analysis run for a pending counsel and
// returns immediately. The run uses its own deadline, independent of the
// submitting request. Whatever happens, the counsel ends in exactly one
// terminal state and at most one status event is published; errors are
// logged and absorbed, never surfaced to the submitter.
func (s *AnalysisService) Dispatch(counselID uint64, chat, date string) {
	go s.run(counselID, chat, date)
}

func (s *AnalysisService) run(counselID uint64, chat, date string) {
	timeout := s.AnalyzeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ev, err := s.analyze(ctx, counselID, chat, date)
	if err != nil {
		log.Error().Err(err).Uint64("counsel_id", counselID).Msg("analysis run failed")
		ev, err = s.Counsels.Fail(ctx, counselID)
		if err != nil {
			log.Error().Err(err).Uint64("counsel_id", counselID).Msg("failed to mark counsel failed")
			return
		}
	}
	if ev != nil && s.Hub != nil {
		s.Hub.PublishStatus(ev)
	}
}

// analyze performs the AI call and, on success, the COMPLETED transition.
func (s *AnalysisService) analyze(ctx context.Context, counselID uint64, chat, date string) (*domain.StatusChangedEvent, error) {
	raw, err := s.AI.Analyze(ctx, chat, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisTransport, err)
	}
	category, err := extractCategory(raw)
	if err != nil {
		return nil, err
	}
	return s.Counsels.Complete(ctx, counselID, raw, category)
}

// AnswerQuestion asks the AI a follow-up question about a completed
// counsel's summary, appends the exchange to the stored document, and
// returns the normalized answer. Ownership and state failures pass through
// as-is; AI transport failures come back as ErrAnalysisQuestionFailed.
func (s *AnalysisService) AnswerQuestion(ctx context.Context, userID, counselID uint64, question string) (string, error) {
	c, err := s.Counsels.Get(ctx, userID, counselID)
	if err != nil {
		return "", err
	}
	if c.Status != domain.StatusCompleted || c.SummaryJSON == nil || *c.SummaryJSON == "" {
		return "", ErrMalformedSummary
	}

	timeout := s.QuestionTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.AI.Ask(qctx, question, json.RawMessage(*c.SummaryJSON))
	if err != nil {
		log.Error().Err(err).Uint64("counsel_id", counselID).Msg("follow-up question failed")
		return "", ErrAnalysisQuestionFailed
	}
	answer := ai.UnwrapAnswer(raw)

	if err := s.Counsels.AppendQuestionAnswer(ctx, userID, counselID, question, answer); err != nil {
		return "", err
	}
	return answer, nil
}

// extractCategory pulls the category out of an analysis envelope. The
// canonical location is data.summary.category; when data.summary is absent
// the envelope's data.category is used instead. The value matches a known
// category by name or localized description, case-insensitively.
func extractCategory(envelope string) (domain.CounselCategory, error) {
	var root struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(envelope), &root); err != nil || len(root.Data) == 0 {
		return "", ErrMalformedSummary
	}

	var data struct {
		Summary  json.RawMessage `json:"summary"`
		Category string          `json:"category"`
	}
	if err := json.Unmarshal(root.Data, &data); err != nil {
		return "", ErrMalformedSummary
	}

	var value string
	if len(data.Summary) > 0 {
		var summary struct {
			Category string `json:"category"`
		}
		if err := json.Unmarshal(data.Summary, &summary); err != nil {
			return "", ErrMalformedSummary
		}
		value = summary.Category
	}
	if strings.TrimSpace(value) == "" {
		value = data.Category
	}
	if strings.TrimSpace(value) == "" {
		return "", ErrCategoryNotFound
	}

	category, err := domain.ParseCategory(value)
	if errors.Is(err, domain.ErrUnknownCategory) {
		return "", ErrCategoryNotFound
	}
	if err != nil {
		return "", err
	}
	return category, nil
}
