package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/mail"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"stepperslife/models"
	"stepperslife/monitoring"
	"stepperslife/utils"
)

// EmailSender delivers one rendered confirmation email.
type EmailSender interface {
	Send(to, subject, htmlBody string) error
}

// RealtimePublisher pushes a payment_success event to the buyer's channel.
type RealtimePublisher interface {
	PublishPaymentSuccess(buyerID, providerPaymentID string, ticketCodes []string)
}

// Notification is one queued confirmation delivery.
type Notification struct {
	IntentID          string
	BuyerID           string
	BuyerEmail        string
	ProviderPaymentID string
	Event             *models.Event
	Tickets           []*models.Ticket
}

// NotificationDispatcher delivers confirmation email and realtime events on a
// best-effort basis. Enqueueing never blocks the webhook response; failures
// are logged and counted, never propagated back into issuance.
type NotificationDispatcher struct {
	email     EmailSender
	realtime  RealtimePublisher
	redis     *redis.Client
	breaker   *utils.CircuitBreaker
	queue     chan Notification
	dedupeTTL time.Duration
}

func NewNotificationDispatcher(email EmailSender, realtime RealtimePublisher, redisClient *redis.Client, queueSize int, dedupeTTL time.Duration) *NotificationDispatcher {
	return &NotificationDispatcher{
		email:     email,
		realtime:  realtime,
		redis:     redisClient,
		breaker:   utils.NewCircuitBreaker("confirmation-email"),
		queue:     make(chan Notification, queueSize),
		dedupeTTL: dedupeTTL,
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case notification := <-d.queue:
				monitoring.SetNotificationQueueDepth(len(d.queue))
				d.deliver(ctx, notification)
			}
		}
	}()
}

// Dispatch queues a confirmation. When the queue is full the notification is
// dropped with a log line; ticket issuance has already succeeded and must not
// wait on email capacity.
func (d *NotificationDispatcher) Dispatch(notification Notification) {
	select {
	case d.queue <- notification:
		monitoring.SetNotificationQueueDepth(len(d.queue))
	default:
		log.Printf("Notification queue full, dropping confirmation for intent %s", notification.IntentID)
		monitoring.TrackNotificationFailure("queue_full")
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n Notification) {
	codes := make([]string, len(n.Tickets))
	for i, t := range n.Tickets {
		codes[i] = t.Code
	}

	if d.realtime != nil {
		d.realtime.PublishPaymentSuccess(n.BuyerID, n.ProviderPaymentID, codes)
	}

	if n.BuyerEmail == "" {
		return
	}

	// One email per intent in the common case. Provider webhook retries that
	// arrive after the marker expires may duplicate; that is a documented
	// limitation, not a rollback trigger.
	dedupeKey := fmt.Sprintf("email:sent:%s", n.IntentID)
	fresh, err := d.redis.SetNX(ctx, dedupeKey, 1, d.dedupeTTL).Result()
	if err == nil && !fresh {
		return
	}

	body, err := renderConfirmationEmail(n)
	if err != nil {
		log.Printf("Error rendering confirmation email for intent %s: %v", n.IntentID, err)
		monitoring.TrackNotificationFailure("render")
		return
	}

	subject := fmt.Sprintf("Your tickets for %s", n.Event.Name)
	err = d.breaker.Execute(ctx, func() error {
		return d.email.Send(n.BuyerEmail, subject, body)
	})
	if err != nil {
		log.Printf("Error sending confirmation email for intent %s: %v", n.IntentID, err)
		monitoring.TrackNotificationFailure("send")
	}
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`
<h2>You're going to {{.Event.Name}}!</h2>
<p>{{.Event.Venue}} &mdash; {{.Event.StartsAt.Format "Monday, January 2, 2006 at 3:04 PM"}}</p>
<p>Present a code below at the door:</p>
<ul>
{{range .Tickets}}<li><strong>{{.Code}}</strong>{{if .SeatLabel}} ({{.SeatLabel}}){{end}}</li>
{{end}}</ul>
<p>See you there.</p>
`))

func renderConfirmationEmail(n Notification) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PBEmailSender sends through PocketBase's configured mail settings.
type PBEmailSender struct {
	app core.App
}

func NewPBEmailSender(app core.App) *PBEmailSender {
	return &PBEmailSender{app: app}
}

func (s *PBEmailSender) Send(to, subject, htmlBody string) error {
	message := &mailer.Message{
		From: mail.Address{
			Name:    s.app.Settings().Meta.SenderName,
			Address: s.app.Settings().Meta.SenderAddress,
		},
		To:      []mail.Address{{Address: to}},
		Subject: subject,
		HTML:    htmlBody,
	}

	return s.app.NewMailClient().Send(message)
}

// PubNubPublisher notifies the buyer's realtime channel, mirroring the
// channel naming the seat-selection frontend subscribes to.
type PubNubPublisher struct {
	pubnub *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pubnub: pn}
}

func (p *PubNubPublisher) PublishPaymentSuccess(buyerID, providerPaymentID string, ticketCodes []string) {
	channel := fmt.Sprintf("user-%s", buyerID)
	p.pubnub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":         "payment_success",
			"payment_id":   providerPaymentID,
			"ticket_codes": ticketCodes,
		}).
		Execute()
}
