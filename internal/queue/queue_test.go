package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"github.com/OFFIS-RIT/trackgraph/pkg/graph"
	"github.com/OFFIS-RIT/trackgraph/pkg/leaselock"
)

type published struct {
	queue   string
	body    string
	headers amqp091.Table
}

type fakeChannel struct {
	declared  []string
	published []published
	failWith  error
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, published{queue: key, body: string(msg.Body), headers: msg.Headers})
	return nil
}

type fakeAck struct {
	acks     int
	requeues int
}

func (f *fakeAck) Ack(uint64, bool) error { f.acks++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		f.requeues++
	}
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

type fakeBuilder struct {
	outcomes map[int64]graph.Outcome
	calls    []int64
}

func (f *fakeBuilder) Process(_ context.Context, eventID int64) graph.Outcome {
	f.calls = append(f.calls, eventID)
	o := f.outcomes[eventID]
	o.EventID = eventID
	return o
}

type fakeLeases struct {
	err  error
	keys []int64
}

func (f *fakeLeases) WithEventLease(ctx context.Context, eventID int64, _ leaselock.Options, fn func(context.Context) error) error {
	f.keys = append(f.keys, eventID)
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fakeLedger struct{ recorded []graph.Outcome }

func (f *fakeLedger) RecordOutcome(_ context.Context, o graph.Outcome) error {
	f.recorded = append(f.recorded, o)
	return nil
}

func delivery(ack *fakeAck, body string, headers amqp091.Table) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, Body: []byte(body), Headers: headers}
}

func TestParseEventMessage(t *testing.T) {
	tests := []struct {
		body    string
		want    int64
		wantErr bool
	}{
		{body: "42", want: 42},
		{body: " 7\n", want: 7},
		{body: string(EncodeEventMessage(1234567890)), want: 1234567890},
		{body: "", wantErr: true},
		{body: "-3", wantErr: true},
		{body: `{"event":1}`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseEventMessage([]byte(tt.body))
		if tt.wantErr {
			if !errors.Is(err, ErrBadMessage) {
				t.Errorf("ParseEventMessage(%q) error = %v, want ErrBadMessage", tt.body, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseEventMessage(%q) = %d, %v, want %d", tt.body, got, err, tt.want)
		}
	}
}

func TestSetupQueues(t *testing.T) {
	ch := &fakeChannel{}
	if err := SetupQueues(ch, []string{EventQueue}); err != nil {
		t.Fatalf("SetupQueues returned error: %v", err)
	}
	want := []string{"event_queue", "event_queue_dlq", "event_queue_retry"}
	if len(ch.declared) != len(want) {
		t.Fatalf("declared %v, want %v", ch.declared, want)
	}
	for i := range want {
		if ch.declared[i] != want[i] {
			t.Fatalf("declared %v, want %v", ch.declared, want)
		}
	}
}

func TestHandleFailureRouting(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		retryable   bool
		wantQueue   string
		wantRetries any
	}{
		{"first failure", nil, true, "event_queue_retry", int32(1)},
		{"counts up", amqp091.Table{"x-retries": int32(3)}, true, "event_queue_retry", int32(4)},
		{"exhausted", amqp091.Table{"x-retries": int32(MaxRetries)}, true, "event_queue_dlq", int32(MaxRetries)},
		{"not retryable", nil, false, "event_queue_dlq", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			ack := &fakeAck{}
			HandleFailure(context.Background(), ch, delivery(ack, "5", tt.headers), EventQueue, tt.retryable)

			if len(ch.published) != 1 {
				t.Fatalf("expected 1 publish, got %d", len(ch.published))
			}
			p := ch.published[0]
			if p.queue != tt.wantQueue || p.body != "5" {
				t.Fatalf("published %+v, want queue %s", p, tt.wantQueue)
			}
			if p.headers["x-retries"] != tt.wantRetries {
				t.Fatalf("x-retries = %v, want %v", p.headers["x-retries"], tt.wantRetries)
			}
			if ack.acks != 1 {
				t.Fatalf("expected the delivery to be acked")
			}
		})
	}
}

func TestHandleFailureRequeuesWhenPublishFails(t *testing.T) {
	ch := &fakeChannel{failWith: errors.New("channel closed")}
	ack := &fakeAck{}
	HandleFailure(context.Background(), ch, delivery(ack, "5", nil), EventQueue, true)

	if ack.acks != 0 || ack.requeues != 1 {
		t.Fatalf("acks=%d requeues=%d, want 0 and 1", ack.acks, ack.requeues)
	}
}

func TestEventWorkerHandle(t *testing.T) {
	configErr := errors.Join(graph.ErrConfig, errors.New("unknown strategy"))
	sourceErr := errors.Join(graph.ErrSource, errors.New("no hits"))

	tests := []struct {
		name      string
		body      string
		outcome   graph.Outcome
		wantAcks  int
		wantQueue string
	}{
		{"processed", "1", graph.Outcome{Status: graph.StatusProcessed}, 1, ""},
		{"skipped", "1", graph.Outcome{Status: graph.StatusSkipped}, 1, ""},
		{"config error", "1", graph.Outcome{Status: graph.StatusFailed, Err: configErr}, 1, "event_queue_dlq"},
		{"source error", "1", graph.Outcome{Status: graph.StatusFailed, Err: sourceErr}, 1, "event_queue_retry"},
		{"malformed", "one", graph.Outcome{}, 1, "event_queue_dlq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			ack := &fakeAck{}
			ledger := &fakeLedger{}
			w := &EventWorker{
				Builder: &fakeBuilder{outcomes: map[int64]graph.Outcome{1: tt.outcome}},
				Channel: ch,
				Queue:   EventQueue,
				Ledger:  ledger,
			}

			w.Handle(context.Background(), delivery(ack, tt.body, nil))

			if ack.acks != tt.wantAcks {
				t.Fatalf("acks = %d, want %d", ack.acks, tt.wantAcks)
			}
			if tt.wantQueue == "" {
				if len(ch.published) != 0 {
					t.Fatalf("unexpected publish %+v", ch.published)
				}
			} else if len(ch.published) != 1 || ch.published[0].queue != tt.wantQueue {
				t.Fatalf("published %+v, want %s", ch.published, tt.wantQueue)
			}
			if tt.body == "1" && len(ledger.recorded) != 1 {
				t.Fatalf("expected the outcome to be recorded")
			}
		})
	}
}

func TestEventWorkerLease(t *testing.T) {
	builder := &fakeBuilder{outcomes: map[int64]graph.Outcome{8: {Status: graph.StatusProcessed}}}

	leases := &fakeLeases{}
	w := &EventWorker{Builder: builder, Channel: &fakeChannel{}, Queue: EventQueue, Leases: leases}
	ack := &fakeAck{}
	if o := w.Handle(context.Background(), delivery(ack, "8", nil)); o.Status != graph.StatusProcessed {
		t.Fatalf("status = %s, want processed", o.Status)
	}
	if len(leases.keys) != 1 || leases.keys[0] != 8 {
		t.Fatalf("lease keys = %v", leases.keys)
	}

	ch := &fakeChannel{}
	busy := &EventWorker{Builder: builder, Channel: ch, Queue: EventQueue, Leases: &fakeLeases{err: leaselock.ErrBusy}}
	o := busy.Handle(context.Background(), delivery(&fakeAck{}, "8", nil))
	if o.Status != graph.StatusFailed || !errors.Is(o.Err, leaselock.ErrBusy) {
		t.Fatalf("outcome = %+v, want busy failure", o)
	}
	if len(ch.published) != 1 || ch.published[0].queue != "event_queue_retry" {
		t.Fatalf("busy event should be retried, published %+v", ch.published)
	}
	if len(builder.calls) != 1 {
		t.Fatalf("builder ran %d times, want 1", len(builder.calls))
	}
}

func TestEnqueueEvents(t *testing.T) {
	ch := &fakeChannel{}
	n, err := EnqueueEvents(context.Background(), ch, []int64{3, 1, 2}, rate.NewLimiter(rate.Inf, 1))
	if err != nil || n != 3 {
		t.Fatalf("EnqueueEvents = %d, %v", n, err)
	}
	for i, want := range []string{"3", "1", "2"} {
		if ch.published[i].queue != EventQueue || ch.published[i].body != want {
			t.Fatalf("message %d = %+v, want %s", i, ch.published[i], want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err = EnqueueEvents(ctx, &fakeChannel{}, []int64{1, 2}, rate.NewLimiter(1, 1))
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("cancelled EnqueueEvents = %d, %v", n, err)
	}
}
