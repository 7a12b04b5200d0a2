package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sim31/fractalgram/internal/consensus"
	"github.com/sim31/fractalgram/internal/events"
	"github.com/sim31/fractalgram/internal/models"
)

type ReportStatus string

const (
	ReportLoading        ReportStatus = "loading"
	ReportPlatformSelect ReportStatus = "platform_select"
	ReportGroupNumber    ReportStatus = "group_number"
	ReportEditText       ReportStatus = "edit_text"
	ReportFailed         ReportStatus = "failed"
)

// Report is a result-report composition session. It moves through loading,
// platform selection, optional group number entry and text editing before the
// report is submitted to the chat.
type Report struct {
	ID                string                   `json:"id"`
	ChatID            string                   `json:"chat_id"`
	Status            ReportStatus             `json:"status"`
	SuggestedPlatform string                   `json:"suggested_platform,omitempty"`
	Platform          *models.ExtPlatformInfo  `json:"platform,omitempty"`
	Results           *models.ConsensusResults `json:"results,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`

	cancelled bool
}

const reportLoadTimeout = 30 * time.Second

// StartReport opens a session for the chat and begins loading its history in
// the background. The returned report is in the loading state; watch update
// notifications or poll GetReport for the transition.
func (s *Service) StartReport(chatID string) (*Report, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id required", ErrValidation)
	}
	r := &Report{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Status:    ReportLoading,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.reports[r.ID] = r
	s.mu.Unlock()

	go s.finishReportLoad(r.ID, chatID)

	snap := *r
	return &snap, nil
}

// finishReportLoad completes the loading phase. Cancellation during loading
// is cooperative: the load runs to completion and the flag is re-read before
// the result is kept, so a cancelled session is discarded instead of
// advancing.
func (s *Service) finishReportLoad(id, chatID string) {
	ctx, cancel := context.WithTimeout(context.Background(), reportLoadTimeout)
	defer cancel()

	err := s.ensureHistory(ctx, chatID)
	suggested := ""
	if err == nil {
		suggested = s.LatestPlatform(chatID)
	}

	s.mu.Lock()
	r := s.reports[id]
	if r == nil || r.cancelled {
		delete(s.reports, id)
		s.mu.Unlock()
		return
	}
	if err != nil {
		r.Status = ReportFailed
		s.mu.Unlock()
		s.log.Warn("report load failed", zap.String("chat", chatID), zap.Error(err))
		s.publish(context.Background(), events.Update{Kind: events.UpdateReport, ChatID: chatID, ReportID: id, Status: string(ReportFailed)})
		return
	}
	r.Status = ReportPlatformSelect
	r.SuggestedPlatform = suggested
	s.mu.Unlock()

	s.publish(context.Background(), events.Update{Kind: events.UpdateReport, ChatID: chatID, ReportID: id, Status: string(ReportPlatformSelect)})
}

// GetReport returns a copy of the session.
func (s *Service) GetReport(id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.reports[id]
	if r == nil {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	snap := *r
	return &snap, nil
}

// SelectReportPlatform fixes the session's target platform and derives the
// results. A nil platform skips submission-link composition and goes straight
// to text editing; otherwise the group number step follows.
func (s *Service) SelectReportPlatform(ctx context.Context, id string, platform *models.ExtPlatformInfo) (*Report, error) {
	s.mu.RLock()
	r := s.reports[id]
	var chatID string
	var status ReportStatus
	if r != nil {
		chatID, status = r.ChatID, r.Status
	}
	s.mu.RUnlock()
	if r == nil {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if status != ReportPlatformSelect {
		return nil, fmt.Errorf("%w: report is %s, expected %s", ErrPrecondition, status, ReportPlatformSelect)
	}
	if platform != nil {
		if platform.Platform == "" || platform.SubmitURL == "" {
			return nil, fmt.Errorf("%w: platform and submit url are required", ErrValidation)
		}
	}

	platName := ""
	if platform != nil {
		platName = platform.Platform
	}
	results, err := s.deriveResults(ctx, chatID, platName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r = s.reports[id]
	if r == nil || r.cancelled {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if r.Status != ReportPlatformSelect {
		return nil, fmt.Errorf("%w: report is %s, expected %s", ErrPrecondition, r.Status, ReportPlatformSelect)
	}
	r.Platform = platform
	r.Results = results
	if platform != nil {
		r.Status = ReportGroupNumber
	} else {
		r.Status = ReportEditText
	}
	snap := *r
	return &snap, nil
}

// SetReportGroupNumber records the group number during the group number step.
func (s *Service) SetReportGroupNumber(id string, n int) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reports[id]
	if r == nil {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if r.Status != ReportGroupNumber {
		return nil, fmt.Errorf("%w: report is %s, expected %s", ErrPrecondition, r.Status, ReportGroupNumber)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: group number must be positive", ErrValidation)
	}
	r.Results.GroupNum = &n
	r.Status = ReportEditText
	snap := *r
	return &snap, nil
}

// ReportMessage composes the session's report text for editing.
func (s *Service) ReportMessage(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.reports[id]
	if r == nil {
		return "", fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if r.Status != ReportEditText {
		return "", fmt.Errorf("%w: report is %s, expected %s", ErrPrecondition, r.Status, ReportEditText)
	}
	return consensus.ResultMessage(*r.Results, r.Platform), nil
}

// SubmitReport sends the report to the chat and closes the session. An empty
// text submits the composed message unchanged.
func (s *Service) SubmitReport(ctx context.Context, id, text string, pinned bool) error {
	s.mu.Lock()
	r := s.reports[id]
	if r == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	if r.Status != ReportEditText {
		status := r.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: report is %s, expected %s", ErrPrecondition, status, ReportEditText)
	}
	if text == "" {
		text = consensus.ResultMessage(*r.Results, r.Platform)
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: report text is empty", ErrValidation)
	}
	chatID := r.ChatID
	delete(s.reports, id)
	s.mu.Unlock()

	req := events.SendRequest{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Text:      text,
		ParseMode: "markdown",
		Pinned:    pinned,
	}
	if err := s.sender.PublishSendRequest(ctx, req); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	s.publish(ctx, events.Update{Kind: events.UpdateReport, ChatID: chatID, ReportID: id, Status: "submitted"})
	return nil
}

// CancelReport ends the session. A session still loading is flagged and
// discarded when the load completes; any other state is dropped immediately.
func (s *Service) CancelReport(id string) error {
	s.mu.Lock()
	r := s.reports[id]
	if r == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	chatID := r.ChatID
	if r.Status == ReportLoading {
		r.cancelled = true
	} else {
		delete(s.reports, id)
	}
	s.mu.Unlock()

	s.publish(context.Background(), events.Update{Kind: events.UpdateReport, ChatID: chatID, ReportID: id, Status: "cancelled"})
	return nil
}
