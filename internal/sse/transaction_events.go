package sse

import (
	"context"
	"sync"

	"ms-checkout/internal/models"
)

// TransactionEventEmitter fans transaction status changes out to SSE clients
type TransactionEventEmitter struct {
	// key: organizerID, value: client channels
	orgClients     map[string][]chan models.TransactionEvent
	orgClientMutex sync.RWMutex

	// key: eventID, value: client channels
	eventClients     map[string][]chan models.TransactionEvent
	eventClientMutex sync.RWMutex

	bufferSize int
}

func NewTransactionEventEmitter() *TransactionEventEmitter {
	return &TransactionEventEmitter{
		orgClients:   make(map[string][]chan models.TransactionEvent),
		eventClients: make(map[string][]chan models.TransactionEvent),
		bufferSize:   10,
	}
}

// SubscribeToOrganizer returns a channel of changes on any of the organizer's events.
// The channel is closed once ctx is done.
func (e *TransactionEventEmitter) SubscribeToOrganizer(ctx context.Context, organizerID string) <-chan models.TransactionEvent {
	return subscribe(ctx, &e.orgClientMutex, e.orgClients, organizerID, e.bufferSize)
}

// SubscribeToEvent returns a channel of changes on one event.
func (e *TransactionEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.TransactionEvent {
	return subscribe(ctx, &e.eventClientMutex, e.eventClients, eventID, e.bufferSize)
}

// EmitTransaction broadcasts to organizer and event subscribers without blocking.
func (e *TransactionEventEmitter) EmitTransaction(event models.TransactionEvent) {
	if event.OrganizerID != "" {
		broadcast(&e.orgClientMutex, e.orgClients, event.OrganizerID, event)
	}
	broadcast(&e.eventClientMutex, e.eventClients, event.EventID, event)
}

func (e *TransactionEventEmitter) OrganizerClientCount(organizerID string) int {
	e.orgClientMutex.RLock()
	defer e.orgClientMutex.RUnlock()
	return len(e.orgClients[organizerID])
}

func (e *TransactionEventEmitter) EventClientCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}

func subscribe(ctx context.Context, mu *sync.RWMutex, clients map[string][]chan models.TransactionEvent, key string, size int) <-chan models.TransactionEvent {
	clientChan := make(chan models.TransactionEvent, size)

	mu.Lock()
	clients[key] = append(clients[key], clientChan)
	mu.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		remove(mu, clients, key, clientChan)
	}()

	return clientChan
}

// broadcast holds the read lock while sending so remove cannot close a channel mid-send.
func broadcast(mu *sync.RWMutex, clients map[string][]chan models.TransactionEvent, key string, event models.TransactionEvent) {
	mu.RLock()
	defer mu.RUnlock()

	for _, clientChan := range clients[key] {
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client for now
		}
	}
}

func remove(mu *sync.RWMutex, clients map[string][]chan models.TransactionEvent, key string, clientChan chan models.TransactionEvent) {
	mu.Lock()
	defer mu.Unlock()

	list := clients[key]
	for i, ch := range list {
		if ch == clientChan {
			clients[key] = append(list[:i], list[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}
