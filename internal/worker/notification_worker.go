package worker

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-scheduler/internal/service"
)

// StartNotificationWorker registers notification handlers and starts webhook
// delivery. The returned function blocks until delivery has drained after
// ctx is cancelled.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService) (wait func()) {
	if notificationService == nil {
		return func() {}
	}
	notificationService.RegisterHandlers()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notificationService.Run(ctx)
	}()
	return wg.Wait
}
