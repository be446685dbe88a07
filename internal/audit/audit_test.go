package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
	"support-agent/internal/models"
)

type recordingSink struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
	events   []models.AuditEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, e models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) snapshot() ([]models.AuditEvent, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEvent(nil), s.events...), s.calls
}

func event(ticketID string, to models.TicketState) models.AuditEvent {
	return models.AuditEvent{
		EventID:    "evt-" + ticketID,
		TicketID:   ticketID,
		CustomerID: "C-1",
		Stage:      "decide",
		From:       models.StateDecided,
		To:         to,
		Reasons:    []string{"LOW_CONFIDENCE"},
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testDispatcherConfig(buffer int) DispatcherConfig {
	return DispatcherConfig{BufferSize: buffer, PublishTimeout: time.Second, BaseDelay: time.Millisecond}
}

func TestDispatcher_DeliversInOrderToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	d := NewDispatcher(testDispatcherConfig(16), logger.NewTestLogger(t), a, b)
	d.Start()

	for _, id := range []string{"T-1", "T-2", "T-3"} {
		d.Record(event(id, models.StateResolved))
	}
	require.NoError(t, d.Close(context.Background()))

	for _, s := range []*recordingSink{a, b} {
		got, _ := s.snapshot()
		require.Len(t, got, 3)
		assert.Equal(t, "T-1", got[0].TicketID)
		assert.Equal(t, "T-3", got[2].TicketID)
	}
}

func TestDispatcher_FullBufferDrops(t *testing.T) {
	sink := &recordingSink{name: "a"}
	d := NewDispatcher(testDispatcherConfig(1), logger.NewTestLogger(t), sink)
	dropped := metrics.AuditDropped.WithLabelValues("buffer")
	before := testutil.ToFloat64(dropped)

	d.Record(event("T-1", models.StateResolved))
	d.Record(event("T-2", models.StateResolved))
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))

	d.Start()
	require.NoError(t, d.Close(context.Background()))
	got, _ := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "T-1", got[0].TicketID)
}

func TestDispatcher_RetriesThenDrops(t *testing.T) {
	flaky := &recordingSink{name: "flaky", failures: 2}
	broken := &recordingSink{name: "broken", failures: 100}
	dropped := metrics.AuditDropped.WithLabelValues("broken")
	before := testutil.ToFloat64(dropped)

	d := NewDispatcher(testDispatcherConfig(4), logger.NewTestLogger(t), flaky, broken)
	d.Start()
	d.Record(event("T-1", models.StateEscalated))
	require.NoError(t, d.Close(context.Background()))

	got, calls := flaky.snapshot()
	assert.Len(t, got, 1)
	assert.Equal(t, 3, calls)

	_, calls = broken.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))
}

func TestDispatcher_RecordAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{name: "a"}
	d := NewDispatcher(testDispatcherConfig(4), logger.NewTestLogger(t), sink)
	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Record(event("T-9", models.StateResolved))
	got, _ := sink.snapshot()
	assert.Empty(t, got)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSinkWithWriter(w)
	require.NoError(t, s.Publish(context.Background(), event("T-1", models.StateEscalated)))
	require.NoError(t, s.Close())

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("T-1"), w.msgs[0].Key)
	assert.Equal(t, "stage", w.msgs[0].Headers[0].Key)

	var decoded models.AuditEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.StateEscalated, decoded.To)
	assert.True(t, w.closed)
}

type fakePublisher struct {
	subjects []string
}

func (p *fakePublisher) Publish(subject string, _ []byte) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func TestNATSSink(t *testing.T) {
	p := &fakePublisher{}
	s := NewNATSSink(p, "support.audit")
	require.NoError(t, s.Publish(context.Background(), event("T-1", models.StateEscalated)))
	assert.Equal(t, []string{"support.audit.decide"}, p.subjects)
}

type fakeSNS struct {
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_OnlyTerminalEvents(t *testing.T) {
	client := &fakeSNS{}
	s := NewSNSSink(client, "arn:aws:sns:eu-west-1:123:support")

	require.NoError(t, s.Publish(context.Background(), event("T-1", models.StateClassified)))
	require.NoError(t, s.Publish(context.Background(), event("T-1", models.StateResolved)))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:support", *client.inputs[0].TopicArn)
	assert.Equal(t, "RESOLVED", *client.inputs[0].MessageAttributes["outcome"].StringValue)
}

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &ses.SendEmailOutput{}, f.err
}

func TestEmailNotifier(t *testing.T) {
	client := &fakeSES{}
	n := NewEmailNotifier(client, "support@example.com", []string{"desk@example.com"})

	require.NoError(t, n.Publish(context.Background(), event("T-1", models.StateResolved)))
	require.NoError(t, n.Publish(context.Background(), event("T-2", models.StateEscalated)))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "support@example.com", *in.Source)
	assert.Equal(t, []string{"desk@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Ticket T-2 escalated", *in.Message.Subject.Data)
	assert.Contains(t, *in.Message.Body.Text.Data, "Reasons: LOW_CONFIDENCE")
}

func TestEmailNotifier_PropagatesError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	n := NewEmailNotifier(client, "support@example.com", []string{"desk@example.com"})
	assert.Error(t, n.Publish(context.Background(), event("T-2", models.StateEscalated)))
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(logger.NewTestLogger(t))
	assert.Equal(t, "log", s.Name())
	assert.NoError(t, s.Publish(context.Background(), event("T-1", models.StateResolved)))
}
