// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// LogChannel writes notifications to the application log
type LogChannel struct {
	logger *logrus.Entry
}

// NewLogChannel creates the log channel
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: utils.ComponentLogger("notification_log")}
}

// Name implements Channel
func (lc *LogChannel) Name() string { return string(models.NotificationTypeLog) }

// Send implements Channel. Destructive notifications log at warn level.
func (lc *LogChannel) Send(_ context.Context, n *models.Notification) error {
	entry := lc.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"title":           n.Title,
		"variant":         n.Variant,
	})
	for k, v := range n.Data {
		entry = entry.WithField("data_"+k, v)
	}

	if n.Variant == models.VariantDestructive {
		entry.Warn(n.Message)
	} else {
		entry.Info(n.Message)
	}
	return nil
}
