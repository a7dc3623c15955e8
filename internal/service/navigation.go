package service

import (
	"context"

	"github.com/askatlas/navigation-assistant/internal/model"
)

// HistorySummarizer produces a short summary of navigation history.
type HistorySummarizer interface {
	SummarizeNavigationHistory(ctx context.Context, history []model.NavigationHistoryEntry) (string, error)
}

// NavigationService exposes the navigation flows.
type NavigationService struct {
	summarizer HistorySummarizer
}

// NewNavigationService creates a navigation service.
func NewNavigationService(summarizer HistorySummarizer) *NavigationService {
	return &NavigationService{summarizer: summarizer}
}

// Summarize returns the history summary.
func (s *NavigationService) Summarize(ctx context.Context, req model.SummarizeHistoryRequest) (model.SummarizeHistoryResponse, error) {
	summary, err := s.summarizer.SummarizeNavigationHistory(ctx, req.History)
	if err != nil {
		return model.SummarizeHistoryResponse{}, err
	}
	return model.SummarizeHistoryResponse{Summary: summary}, nil
}
