package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/service/reconcile"
)

// ---- doubles ----

type memSims struct {
	mu   sync.Mutex
	sims map[string]*model.SimCard // by id
}

func newMemSims() *memSims { return &memSims{sims: make(map[string]*model.SimCard)} }

func (f *memSims) Register(_ context.Context, sim model.SimCard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// the sim_cards table has a unique key on number
	for _, s := range f.sims {
		if s.Number == sim.Number {
			return errors.New("duplicate entry for key number")
		}
	}
	c := sim
	f.sims[sim.ID] = &c
	return nil
}

func (f *memSims) GetByID(_ context.Context, id string) (*model.SimCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sims[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *memSims) GetByNumber(_ context.Context, number string) (*model.SimCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sims {
		if s.Number == number {
			c := *s
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *memSims) List(_ context.Context) ([]model.SimCard, error) { return nil, nil }

func (f *memSims) Update(_ context.Context, _ string, _ repository.SimUpdate) (*model.SimCard, error) {
	return nil, repository.ErrNotFound
}

func (f *memSims) Deactivate(_ context.Context, _ string) error { return repository.ErrNotFound }

func (f *memSims) ClaimForSend(_ context.Context, _ string) (*model.SimCard, error) {
	return nil, repository.ErrNoneAvailable
}

func (f *memSims) ReleaseClaim(_ context.Context, _ string) error { return nil }

func (f *memSims) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sims)
}

type memMessages struct {
	mu   sync.Mutex
	byID map[string]*model.Message
}

func newMemMessages() *memMessages { return &memMessages{byID: make(map[string]*model.Message)} }

func (f *memMessages) Insert(_ context.Context, m model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := m
	f.byID[m.ID] = &c
	return nil
}

func (f *memMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.byID[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *memMessages) UpdateStatus(_ context.Context, id string, status model.MessageStatus) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.Status = status
	c := *m
	return &c, nil
}

func (f *memMessages) ListByDirection(_ context.Context, direction model.Direction, _, _ int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.byID {
		if m.Direction == direction {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *memMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type memLogs struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func (f *memLogs) Append(_ context.Context, e model.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *memLogs) List(_ context.Context, _, _ int) ([]model.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.LogEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *memLogs) byAction(action model.LogAction) []model.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LogEntry
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type memHistory struct {
	mu   sync.Mutex
	rows []model.SmsStatus
}

func (f *memHistory) Record(_ context.Context, s model.SmsStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, s)
	return nil
}

func (f *memHistory) List(_ context.Context, _, _ int) ([]model.SmsStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SmsStatus, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *memHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
}

func (f *memPublisher) Publish(_ context.Context, topic string, _, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, payload)
	return nil
}

func (f *memPublisher) Close() error { return nil }

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *memNotifier) Notify(_ context.Context, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *memNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type fixture struct {
	sims    *memSims
	msgs    *memMessages
	logs    *memLogs
	history *memHistory
	pub     *memPublisher
	ntf     *memNotifier
	svc     *reconcile.Service
}

func newFixture() *fixture {
	f := &fixture{
		sims:    newMemSims(),
		msgs:    newMemMessages(),
		logs:    &memLogs{},
		history: &memHistory{},
		pub:     &memPublisher{},
		ntf:     &memNotifier{},
	}
	f.svc = reconcile.New(f.sims, f.msgs, f.logs, f.history, f.pub, f.ntf, "sms.status")
	return f
}

// ---- tests ----

func TestOnStatusEvent_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cases := [][]byte{
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"status":"delivered"}`),                                 // no identity
		[]byte(`{"sender_number":"+1","receiver_number":"+2"}`),          // no body, no status
		[]byte(`{"message_id":"m1"}`),                                    // no status
		[]byte(`{"sender_number":"+1","body":"x","status":"delivered"}`), // incomplete pair
	}
	for _, payload := range cases {
		if err := f.svc.OnStatusEvent(context.Background(), payload); !errors.Is(err, reconcile.ErrMalformedPayload) {
			t.Errorf("payload %s: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
	if f.history.count() != 0 {
		t.Fatalf("malformed events must not be recorded, got %d rows", f.history.count())
	}
}

func TestOnStatusEvent_DeliveredTransition(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_ = f.msgs.Insert(context.Background(), model.Message{
		ID: "m1", Direction: model.DirectionOutgoing, Status: model.StatusSent, SimID: "sim1",
	})

	payload := []byte(`{"message_id":"m1","status":"delivered"}`)
	if err := f.svc.OnStatusEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}

	m, _ := f.msgs.GetByID(context.Background(), "m1")
	if m.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %s", m.Status)
	}
	if f.history.count() != 1 {
		t.Fatalf("expected 1 history row, got %d", f.history.count())
	}
	if f.ntf.count("sms_status_update") != 1 {
		t.Fatal("expected sms_status_update notification")
	}
	updLogs := f.logs.byAction(model.ActionStatusUpdate)
	if len(updLogs) != 1 || updLogs[0].Outcome != model.OutcomeSuccess {
		t.Fatalf("expected one successful status_update log, got %+v", updLogs)
	}
}

func TestOnStatusEvent_DuplicateTerminalIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_ = f.msgs.Insert(context.Background(), model.Message{
		ID: "m1", Direction: model.DirectionOutgoing, Status: model.StatusSent,
	})

	payload := []byte(`{"message_id":"m1","status":"delivered"}`)
	if err := f.svc.OnStatusEvent(context.Background(), payload); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if err := f.svc.OnStatusEvent(context.Background(), payload); err != nil {
		t.Fatalf("duplicate event: %v", err)
	}

	m, _ := f.msgs.GetByID(context.Background(), "m1")
	if m.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %s", m.Status)
	}
	if f.msgs.count() != 1 {
		t.Fatalf("duplicate must not add records, got %d", f.msgs.count())
	}
	// duplicate history rows are acceptable; the notification is not repeated
	if f.ntf.count("sms_status_update") != 1 {
		t.Fatalf("expected single notification, got %d", f.ntf.count("sms_status_update"))
	}
}

func TestOnStatusEvent_UnmatchedMessageKeepsHistory(t *testing.T) {
	t.Parallel()

	f := newFixture()
	payload := []byte(`{"message_id":"ghost","status":"delivered","sender_number":"+1","receiver_number":"+2","message":"x"}`)
	if err := f.svc.OnStatusEvent(context.Background(), payload); err != nil {
		t.Fatalf("unmatched must not fail: %v", err)
	}

	if f.history.count() != 1 {
		t.Fatalf("expected history row for unmatched event, got %d", f.history.count())
	}
	if f.msgs.count() != 0 {
		t.Fatal("unmatched status must not create messages")
	}
	updLogs := f.logs.byAction(model.ActionStatusUpdate)
	if len(updLogs) != 1 || updLogs[0].Outcome != model.OutcomeFailure {
		t.Fatalf("expected unmatched log entry, got %+v", updLogs)
	}

	// a following well-formed event still processes
	_ = f.msgs.Insert(context.Background(), model.Message{ID: "m2", Direction: model.DirectionOutgoing, Status: model.StatusSent})
	if err := f.svc.OnStatusEvent(context.Background(), []byte(`{"message_id":"m2","status":"delivered"}`)); err != nil {
		t.Fatalf("subsequent event blocked: %v", err)
	}
}

func TestOnStatusEvent_PairIdentifiedWithoutMessageID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	payload := []byte(`{"sender_number":"+111","receiver_number":"+222","message":"hello","status":"delivered","timestamp":1735000000}`)
	if err := f.svc.OnStatusEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}

	rows, _ := f.history.List(context.Background(), 10, 0)
	if len(rows) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(rows))
	}
	r := rows[0]
	if r.SenderNumber != "+111" || r.ReceiverNumber != "+222" || r.Body != "hello" || r.Status != "delivered" {
		t.Fatalf("unexpected history row: %+v", r)
	}
	if r.CreatedAt.Unix() != 1735000000 {
		t.Fatalf("expected event timestamp preserved, got %v", r.CreatedAt)
	}
}

func TestOnStatusEvent_AnomalousTransitionApplied(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_ = f.msgs.Insert(context.Background(), model.Message{
		ID: "m1", Direction: model.DirectionOutgoing, Status: model.StatusPending,
	})

	// pending -> delivered skips sent; trusted anyway once matched
	if err := f.svc.OnStatusEvent(context.Background(), []byte(`{"message_id":"m1","status":"delivered"}`)); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}
	m, _ := f.msgs.GetByID(context.Background(), "m1")
	if m.Status != model.StatusDelivered {
		t.Fatalf("expected last-write-wins delivered, got %s", m.Status)
	}
}

func TestOnReceiveEvent_CreatesIncomingAndAutoRegisters(t *testing.T) {
	t.Parallel()

	f := newFixture()
	payload := []byte(`{"sender":"49 170 1234","receiver":"+1415550199","message":"pong"}`)
	if err := f.svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnReceiveEvent: %v", err)
	}

	in, _ := f.msgs.ListByDirection(context.Background(), model.DirectionIncoming, 10, 0)
	if len(in) != 1 {
		t.Fatalf("expected 1 incoming message, got %d", len(in))
	}
	m := in[0]
	if m.Status != model.StatusReceived || m.Sender != "+491701234" || m.Recipient != "+1415550199" || m.Body != "pong" {
		t.Fatalf("unexpected incoming message: %+v", m)
	}

	sim, err := f.sims.GetByNumber(context.Background(), "+491701234")
	if err != nil {
		t.Fatalf("expected auto-registered sim: %v", err)
	}
	if sim.Status != model.SimActive {
		t.Fatalf("auto-registered sim should default active, got %s", sim.Status)
	}
	if m.SimID != sim.ID {
		t.Fatalf("message should reference the sim, got %q want %q", m.SimID, sim.ID)
	}

	// ack published back to the status topic
	if len(f.pub.topics) != 1 || f.pub.topics[0] != "sms.status" {
		t.Fatalf("expected ack on sms.status, got %v", f.pub.topics)
	}
	var ack model.StatusEvent
	if err := json.Unmarshal(f.pub.bodies[0], &ack); err != nil {
		t.Fatalf("bad ack payload: %v", err)
	}
	if ack.MessageID != m.ID || ack.Status != "received" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	if f.ntf.count("sms_received") != 1 {
		t.Fatal("expected sms_received notification")
	}
	if n := len(f.logs.byAction(model.ActionReceive)); n != 1 {
		t.Fatalf("expected one receive log, got %d", n)
	}
}

func TestOnReceiveEvent_KnownSimNotReRegistered(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_ = f.sims.Register(context.Background(), model.SimCard{ID: "sim9", Number: "+491701234", Status: model.SimActive})

	payload := []byte(`{"sender":"+491701234","message":"pong"}`)
	if err := f.svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnReceiveEvent: %v", err)
	}
	if f.sims.count() != 1 {
		t.Fatalf("expected no new sim registration, got %d sims", f.sims.count())
	}

	in, _ := f.msgs.ListByDirection(context.Background(), model.DirectionIncoming, 10, 0)
	if len(in) != 1 || in[0].SimID != "sim9" {
		t.Fatalf("expected message attributed to sim9, got %+v", in)
	}
}

// staleSims makes the first n GetByNumber calls miss, simulating a lookup
// racing a concurrent registration for the same sender.
type staleSims struct {
	*memSims
	mu     sync.Mutex
	misses int
}

func (f *staleSims) GetByNumber(ctx context.Context, number string) (*model.SimCard, error) {
	f.mu.Lock()
	if f.misses > 0 {
		f.misses--
		f.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	f.mu.Unlock()
	return f.memSims.GetByNumber(ctx, number)
}

func TestOnReceiveEvent_RegisterRaceLoserStillAttributes(t *testing.T) {
	t.Parallel()

	// Another processor registered the sender between this event's lookup
	// and its register attempt. The unique number key rejects the second
	// insert; the event must recover and attribute to the winner's sim.
	base := newMemSims()
	_ = base.Register(context.Background(), model.SimCard{ID: "sim-first", Number: "+491701234", Status: model.SimActive})
	sims := &staleSims{memSims: base, misses: 1}

	msgs := newMemMessages()
	logs := &memLogs{}
	history := &memHistory{}
	pub := &memPublisher{}
	ntf := &memNotifier{}
	svc := reconcile.New(sims, msgs, logs, history, pub, ntf, "sms.status")

	payload := []byte(`{"sender":"+491701234","message":"pong"}`)
	if err := svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnReceiveEvent: %v", err)
	}

	if base.count() != 1 {
		t.Fatalf("expected no second registration, got %d sims", base.count())
	}
	in, _ := msgs.ListByDirection(context.Background(), model.DirectionIncoming, 10, 0)
	if len(in) != 1 {
		t.Fatalf("expected the inbound message persisted, got %d", len(in))
	}
	if in[0].SimID != "sim-first" {
		t.Fatalf("expected attribution to the winning sim, got %q", in[0].SimID)
	}
}

// downSims fails every lookup and registration, simulating a registry
// persistence outage.
type downSims struct{ *memSims }

func (f *downSims) GetByNumber(_ context.Context, _ string) (*model.SimCard, error) {
	return nil, errors.New("registry unavailable")
}

func (f *downSims) Register(_ context.Context, _ model.SimCard) error {
	return errors.New("registry unavailable")
}

func TestOnReceiveEvent_RegistryOutageDegradesToUnattributed(t *testing.T) {
	t.Parallel()

	sims := &downSims{memSims: newMemSims()}
	msgs := newMemMessages()
	svc := reconcile.New(sims, msgs, &memLogs{}, &memHistory{}, &memPublisher{}, &memNotifier{}, "sms.status")

	payload := []byte(`{"sender":"+491701234","message":"pong"}`)
	if err := svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("OnReceiveEvent: %v", err)
	}

	in, _ := msgs.ListByDirection(context.Background(), model.DirectionIncoming, 10, 0)
	if len(in) != 1 {
		t.Fatalf("expected the inbound message persisted, got %d", len(in))
	}
	if in[0].SimID != "" {
		t.Fatalf("expected an unattributed message, got sim %q", in[0].SimID)
	}
	if in[0].Status != model.StatusReceived || in[0].Body != "pong" {
		t.Fatalf("unexpected message: %+v", in[0])
	}
}

func TestOnReceiveEvent_DuplicateDeliveryTolerated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	payload := []byte(`{"sender":"+491701234","message":"pong"}`)
	if err := f.svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.OnReceiveEvent(context.Background(), payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	// two message records with distinct ids, one sim
	in, _ := f.msgs.ListByDirection(context.Background(), model.DirectionIncoming, 10, 0)
	if len(in) != 2 || in[0].ID == in[1].ID {
		t.Fatalf("expected two distinct records, got %+v", in)
	}
	if f.sims.count() != 1 {
		t.Fatalf("sim must only register once, got %d", f.sims.count())
	}
}

func TestOnReceiveEvent_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cases := [][]byte{
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"sender":"+1"}`),       // no message
		[]byte(`{"message":"x"}`),       // no sender
		[]byte(`{"sender":"abc","message":"x"}`), // unparseable sender
	}
	for _, payload := range cases {
		if err := f.svc.OnReceiveEvent(context.Background(), payload); !errors.Is(err, reconcile.ErrMalformedPayload) {
			t.Errorf("payload %s: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
	if f.msgs.count() != 0 {
		t.Fatal("malformed receive events must not create messages")
	}
}
