package worker

import (
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
)

// StartNotificationWorker registers notification handlers on bus.
func StartNotificationWorker(notificationService *service.NotificationService, bus events.Dispatcher) {
	if notificationService == nil || bus == nil {
		return
	}
	notificationService.RegisterHandlers(bus)
}
