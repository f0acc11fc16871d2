package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"laundryonline/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the part of the store the workers need.
type SubscriptionStore interface {
	PushSubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Job is one notification to push to the subscribers of a machine.
type Job struct {
	MachineID    string
	Notification Notification
}

// pushPayload is what the service worker receives.
type pushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	MachineID string `json:"machineId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, store SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size), // Buffered channel
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			log.Printf("Worker %d processing machine %s", id, job.MachineID)
			wp.sendNotificationsForMachine(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool. It blocks while the queue is full
// unless ctx ends first.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) {
	select {
	case wp.jobs <- job:
	case <-ctx.Done():
		log.Printf("Dropping push for machine %s: %v", job.MachineID, ctx.Err())
	}
}

// Deliver queues a web push for notifications tied to a machine.
func (wp *WorkerPool) Deliver(ctx context.Context, n Notification) {
	if n.MachineID == "" {
		return
	}
	wp.Dispatch(ctx, Job{MachineID: n.MachineID, Notification: n})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForMachine fetches subscriptions and sends the job's
// notification to each of them.
func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, job Job) {
	subscriptions, err := wp.store.PushSubscriptionsForMachine(ctx, job.MachineID)
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %s: %v", job.MachineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for machine %s", len(subscriptions), job.MachineID)

	payload, err := json.Marshal(pushPayload{
		Title:     job.Notification.Title,
		Body:      job.Notification.Message,
		MachineID: job.MachineID,
		Timestamp: job.Notification.Timestamp.UnixMilli(),
	})
	if err != nil {
		log.Printf("Error encoding push payload for machine %s: %v", job.MachineID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
