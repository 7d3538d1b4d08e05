package services

import "infobot-backend/internal/models"

// Broadcaster receives ledger events after the change has been stored.
// Publishing must not block the caller.
type Broadcaster interface {
	Publish(event models.LedgerEvent)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(models.LedgerEvent) {}

// NoopBroadcaster drops every event.
var NoopBroadcaster Broadcaster = noopBroadcaster{}
