package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the Kafka sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams every event keyed by ticket id, so one ticket's
// events stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "stage", Value: []byte(event.Stage)},
		},
	})
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

// Publisher is the subset of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes to <subject>.<stage> so consumers can subscribe to
// terminal stages only.
type NATSSink struct {
	conn    Publisher
	subject string
}

// ConnectNATS dials url with reconnect handling.
func ConnectNATS(url string, log logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", map[string]interface{}{"error": err})
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected", nil)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func NewNATSSink(conn Publisher, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Publish(_ context.Context, event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject+"."+strings.ToLower(event.Stage), data)
}

// SNSService is the subset of *sns.Client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink fans terminal events out to an SNS topic. Intermediate
// transitions are skipped.
type SNSSink struct {
	client   SNSService
	topicARN string
}

func NewSNSSink(client SNSService, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Publish(ctx context.Context, event models.AuditEvent) error {
	if !event.To.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(string(event.To))},
		},
	})
	return err
}

// SESService is the subset of *ses.Client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailNotifier emails the support desk when a ticket escalates.
type EmailNotifier struct {
	client     SESService
	from       string
	recipients []string
}

func NewEmailNotifier(client SESService, from string, recipients []string) *EmailNotifier {
	return &EmailNotifier{client: client, from: from, recipients: recipients}
}

func (n *EmailNotifier) Name() string { return "ses" }

func (n *EmailNotifier) Publish(ctx context.Context, event models.AuditEvent) error {
	if event.To != models.StateEscalated || len(n.recipients) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Ticket %s escalated", event.TicketID)
	body := escalationBody(event)
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{ToAddresses: n.recipients},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.from),
	})
	return err
}

func escalationBody(event models.AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket: %s\n", event.TicketID)
	fmt.Fprintf(&b, "Customer: %s\n", event.CustomerID)
	fmt.Fprintf(&b, "Escalated at: %s\n", event.At.UTC().Format("2006-01-02T15:04:05Z"))
	if len(event.Reasons) > 0 {
		fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(event.Reasons, ", "))
	}
	return b.String()
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.With(map[string]interface{}{"sink": "log"})}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, event models.AuditEvent) error {
	s.logger.Info("audit event", map[string]interface{}{
		"eventId":   event.EventID,
		"ticketId":  event.TicketID,
		"stage":     event.Stage,
		"from":      event.From,
		"to":        event.To,
		"elapsedMs": event.ElapsedMs,
		"reasons":   event.Reasons,
	})
	return nil
}
