// Package mailer dispatches customer emails as jobs on an AMQP queue. The
// actual rendering and SMTP delivery live in an external worker; dedup of the
// paid-confirmation email is the reconciler's job, not this package's.
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seamark/payrecon/internal/order"
)

const mailQueue = "mail_jobs"

// Job kinds understood by the mail worker.
const (
	JobOrderConfirmation = "order_confirmation"
	JobRefundNotice      = "refund_notice"
)

// Job is the queued mail request.
type Job struct {
	Kind        string `json:"kind"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TenantID    string `json:"tenant_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	TotalCents  int64  `json:"total_cents"`
	Currency    string `json:"currency"`
}

// Mailer sends customer notifications.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o *order.Order) error
	SendRefundNotice(ctx context.Context, o *order.Order) error
}

// AMQPMailer publishes mail jobs over a RabbitMQ connection.
type AMQPMailer struct {
	conn *amqp.Connection
}

// NewAMQP creates a mailer and declares the durable mail queue.
func NewAMQP(conn *amqp.Connection) (*AMQPMailer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("mailer channel: %w", err)
	}
	defer ch.Close()
	_, err = ch.QueueDeclare(
		mailQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare %s: %w", mailQueue, err)
	}
	return &AMQPMailer{conn: conn}, nil
}

func (m *AMQPMailer) publish(ctx context.Context, job Job) error {
	ch, err := m.conn.Channel()
	if err != nil {
		return fmt.Errorf("mailer channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mail job: %w", err)
	}
	err = ch.PublishWithContext(ctx,
		"",        // exchange
		mailQueue, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish mail job: %w", err)
	}
	return nil
}

func jobFor(kind string, o *order.Order) Job {
	return Job{
		Kind:        kind,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TenantID:    o.TenantID,
		Email:       o.CustomerEmail,
		Name:        o.CustomerName,
		TotalCents:  o.TotalCents,
		Currency:    o.Currency,
	}
}

// SendOrderConfirmation queues the paid-order confirmation email.
func (m *AMQPMailer) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	return m.publish(ctx, jobFor(JobOrderConfirmation, o))
}

// SendRefundNotice queues a refund notification email.
func (m *AMQPMailer) SendRefundNotice(ctx context.Context, o *order.Order) error {
	return m.publish(ctx, jobFor(JobRefundNotice, o))
}

// LogMailer logs instead of sending. Used when the queue is unreachable at
// startup so checkout keeps working in degraded mode.
type LogMailer struct {
	Log *slog.Logger
}

func (m *LogMailer) logJob(kind string, o *order.Order) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("mail queue unavailable, dropping mail job",
		"kind", kind, "order_id", o.ID, "email", o.CustomerEmail)
	return nil
}

func (m *LogMailer) SendOrderConfirmation(_ context.Context, o *order.Order) error {
	return m.logJob(JobOrderConfirmation, o)
}

func (m *LogMailer) SendRefundNotice(_ context.Context, o *order.Order) error {
	return m.logJob(JobRefundNotice, o)
}
