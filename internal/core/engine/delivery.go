package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// LogDelivery records report deliveries in the log instead of sending
// them anywhere. It stands in until a real mail or webhook transport is
// configured.
type LogDelivery struct {
	logger *logrus.Logger
}

func NewLogDelivery(logger *logrus.Logger) *LogDelivery {
	return &LogDelivery{logger: logger}
}

func (d *LogDelivery) Deliver(ctx context.Context, report *types.Entity, payload []byte, contentType string, recipients []string) error {
	d.logger.WithFields(logrus.Fields{
		"report_id":    report.ID,
		"content_type": contentType,
		"bytes":        len(payload),
		"recipients":   recipients,
	}).Info("Report delivered")
	return nil
}
