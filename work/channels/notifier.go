package channels

import (
	"context"

	"streamhub/work/logger"
	"streamhub/work/types"
)

// LogNotifier returns a Notifier that only logs; it is used when the host provides none.
func LogNotifier() types.Notifier {
	return types.NotifierFunc(func(_ context.Context, topic string, payload any) {
		logger.Debug("{channels/notifier - Notify} %s: %+v", topic, payload)
	})
}
