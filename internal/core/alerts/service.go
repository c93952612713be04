package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
)

// Service exposes the alert event surface: persistence of fired events,
// queries, and acknowledgement. Events are never deleted here; pruning
// is a retention concern outside this core.
type Service struct {
	repo   repositories.AlertRepository
	logger *logrus.Logger
}

// NewService creates an alert service backed by the given repository.
func NewService(repo repositories.AlertRepository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record persists a freshly fired alert event.
func (s *Service) Record(ctx context.Context, event *types.AlertEvent) error {
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to persist alert event: %w", err)
	}
	return nil
}

// GetAlerts returns events matching the filter.
func (s *Service) GetAlerts(ctx context.Context, filter repositories.AlertFilter) ([]*types.AlertEvent, error) {
	events, err := s.repo.GetEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	return events, nil
}

// Acknowledge marks an event acknowledged by the given user. It is the
// only mutation an event sees after creation.
func (s *Service) Acknowledge(ctx context.Context, eventID, who string) error {
	if who == "" {
		return fmt.Errorf("acknowledger is required")
	}
	now := time.Now()
	if err := s.repo.AcknowledgeEvent(ctx, eventID, who, now); err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", eventID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id":        eventID,
		"acknowledged_by": who,
	}).Info("Alert acknowledged")
	return nil
}
