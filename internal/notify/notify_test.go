package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

type claimKey struct {
	ref model.Reference
	ch  model.Channel
}

type memLedger struct {
	mu     sync.Mutex
	rows   []model.NotificationLog
	claims map[claimKey]bool
}

func (l *memLedger) Append(_ context.Context, n *model.NotificationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n.ID = uint64(len(l.rows) + 1)
	l.rows = append(l.rows, *n)
	return nil
}

func (l *memLedger) HasSent(_ context.Context, ref model.Reference, ch model.Channel) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if r.Reference != nil && *r.Reference == ref && r.Channel == ch && r.Status == model.NotificationSent {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) Claim(_ context.Context, ref model.Reference, ch model.Channel) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := claimKey{ref, ch}
	if _, held := l.claims[k]; held {
		return false, nil
	}
	if l.claims == nil {
		l.claims = make(map[claimKey]bool)
	}
	l.claims[k] = false
	return true, nil
}

func (l *memLedger) Settle(_ context.Context, ref model.Reference, ch model.Channel, sent bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := claimKey{ref, ch}
	if sent {
		l.claims[k] = true
	} else if !l.claims[k] {
		delete(l.claims, k)
	}
	return nil
}

func (l *memLedger) byChannel(ch model.Channel) []model.NotificationLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.NotificationLog
	for _, r := range l.rows {
		if r.Channel == ch {
			out = append(out, r)
		}
	}
	return out
}

// scriptedSender fails the first `failures` calls.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *scriptedSender) Send(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("gateway unreachable")
	}
	return nil
}

// gatedSender blocks inside Send until release is closed.
type gatedSender struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *gatedSender) Send(context.Context, string, string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func newTestDispatcher(sms, wa Sender, ledger Ledger) *Dispatcher {
	d := NewDispatcher(map[model.Channel]Sender{model.ChannelSMS: sms, model.ChannelWhatsApp: wa}, ledger, NewTemplates(nil))
	d.retryWait = time.Millisecond
	d.Logger().SetOutput(io.Discard)
	return d
}

var ref = &model.Reference{Type: "ticket", ID: "TK1ABC"}

func TestSendIsIdempotentPerReferenceAndChannel(t *testing.T) {
	sms, wa := &scriptedSender{}, &scriptedSender{}
	ledger := &memLedger{}
	d := newTestDispatcher(sms, wa, ledger)
	ctx := context.Background()
	req := Request{Phone: "01712345678", Message: "hello", Channel: model.ChannelSMS, Reference: ref}

	first, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Status != model.NotificationSent || first[0].Duplicate {
		t.Fatalf("first send = %+v", first[0])
	}
	second, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !second[0].Duplicate || sms.calls != 1 {
		t.Fatalf("second send = %+v, gateway calls = %d", second[0], sms.calls)
	}

	// The other channel has its own ledger entry.
	req.Channel = model.ChannelBoth
	both, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !both[0].Duplicate || both[1].Duplicate || both[1].Status != model.NotificationSent {
		t.Fatalf("both = %+v", both)
	}
	if wa.calls != 1 || sms.calls != 1 {
		t.Errorf("calls sms=%d wa=%d", sms.calls, wa.calls)
	}
}

func TestSendRetriesOnceAndLogsEveryAttempt(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		status   model.NotificationStatus
		attempts int
		logged   []model.NotificationStatus
	}{
		{"first try", 0, model.NotificationSent, 1, []model.NotificationStatus{model.NotificationSent}},
		{"retry succeeds", 1, model.NotificationSent, 2, []model.NotificationStatus{model.NotificationFailed, model.NotificationSent}},
		{"both fail", 5, model.NotificationFailed, 2, []model.NotificationStatus{model.NotificationFailed, model.NotificationFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sms := &scriptedSender{failures: tt.failures}
			ledger := &memLedger{}
			d := newTestDispatcher(sms, &scriptedSender{}, ledger)

			res, err := d.Send(context.Background(), Request{Phone: "01712345678", Message: "m", Channel: model.ChannelSMS, Reference: ref})
			if err != nil {
				t.Fatal(err)
			}
			if res[0].Status != tt.status || res[0].Attempts != tt.attempts {
				t.Errorf("result = %+v", res[0])
			}
			rows := ledger.byChannel(model.ChannelSMS)
			if len(rows) != len(tt.logged) {
				t.Fatalf("logged %d rows, want %d", len(rows), len(tt.logged))
			}
			for i, r := range rows {
				if r.Status != tt.logged[i] {
					t.Errorf("row %d status = %s, want %s", i, r.Status, tt.logged[i])
				}
				if r.Recipient != "017*****678" {
					t.Errorf("recipient not masked: %q", r.Recipient)
				}
				if (r.Error != nil) != (r.Status == model.NotificationFailed) {
					t.Errorf("row %d error = %v", i, r.Error)
				}
			}
		})
	}
}

func TestConcurrentSendReachesGatewayOnce(t *testing.T) {
	sms := &gatedSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	d := newTestDispatcher(sms, &scriptedSender{}, &memLedger{})
	ctx := context.Background()
	req := Request{Phone: "01712345678", Message: "hello", Channel: model.ChannelSMS, Reference: ref}

	done := make(chan []ChannelResult, 1)
	go func() {
		res, _ := d.Send(ctx, req)
		done <- res
	}()
	<-sms.entered

	inFlight, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !inFlight[0].Duplicate || inFlight[0].Status != model.NotificationPending || inFlight[0].Attempts != 0 {
		t.Errorf("concurrent send = %+v, want pending duplicate", inFlight[0])
	}

	close(sms.release)
	first := <-done
	if first[0].Status != model.NotificationSent || first[0].Duplicate {
		t.Errorf("first send = %+v", first[0])
	}
	after, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !after[0].Duplicate || after[0].Status != model.NotificationSent {
		t.Errorf("send after delivery = %+v", after[0])
	}
	if sms.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", sms.calls)
	}
}

func TestFailedDeliveryCanBeRetriedLater(t *testing.T) {
	sms := &scriptedSender{failures: 2}
	ledger := &memLedger{}
	d := newTestDispatcher(sms, &scriptedSender{}, ledger)
	ctx := context.Background()
	req := Request{Phone: "01712345678", Message: "hello", Channel: model.ChannelSMS, Reference: ref}

	res, err := d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Status != model.NotificationFailed {
		t.Fatalf("first send = %+v", res[0])
	}
	res, err = d.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Status != model.NotificationSent || res[0].Duplicate || sms.calls != 3 {
		t.Errorf("retry = %+v, gateway calls = %d", res[0], sms.calls)
	}
	if !ledger.claims[claimKey{*ref, model.ChannelSMS}] {
		t.Errorf("claim not settled as sent")
	}
}

func TestBothChannelsAreIndependent(t *testing.T) {
	sms := &scriptedSender{failures: 5}
	wa := &scriptedSender{}
	d := newTestDispatcher(sms, wa, &memLedger{})

	res, err := d.Send(context.Background(), Request{Phone: "01712345678", Message: "m", Channel: model.ChannelBoth})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Channel != model.ChannelSMS || res[0].Status != model.NotificationFailed {
		t.Errorf("sms = %+v", res[0])
	}
	if res[1].Channel != model.ChannelWhatsApp || res[1].Status != model.NotificationSent {
		t.Errorf("whatsapp = %+v", res[1])
	}
}

func TestSendWithoutReferenceIsNotDeduplicated(t *testing.T) {
	sms := &scriptedSender{}
	d := newTestDispatcher(sms, &scriptedSender{}, &memLedger{})
	req := Request{Phone: "01712345678", Message: "m", Channel: model.ChannelSMS}
	for i := 0; i < 2; i++ {
		if _, err := d.Send(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if sms.calls != 2 {
		t.Errorf("calls = %d, want 2", sms.calls)
	}
}

func TestSendValidation(t *testing.T) {
	d := newTestDispatcher(&scriptedSender{}, &scriptedSender{}, &memLedger{})
	tests := []Request{
		{Phone: "123", Message: "m", Channel: model.ChannelSMS},
		{Phone: "01712345678", Message: " ", Channel: model.ChannelSMS},
		{Phone: "01712345678", Message: "m", Channel: "email"},
		{Phone: "01712345678", Message: "m", Channel: model.ChannelSMS, Reference: &model.Reference{Type: "ticket"}},
	}
	for _, req := range tests {
		var ve *model.ValidationError
		if _, err := d.Send(context.Background(), req); !errors.As(err, &ve) {
			t.Errorf("Send(%+v) = %v, want ValidationError", req, err)
		}
	}
}

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Nadia", "ticket_number": "TK1", "date": "2025-03-01", "total": "8.50"}

	got, err := NewTemplates(nil).Render(TypeTicketIssued, vars)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Dear Nadia, your ticket TK1 for 2025-03-01 is confirmed. Total: BDT 8.50") {
		t.Errorf("fallback english line missing: %q", got)
	}
	if !strings.Contains(got, "প্রিয় Nadia") {
		t.Errorf("fallback bangla line missing: %q", got)
	}

	stored := NewTemplates(map[string]string{TypeTicketIssued: "{{ name }}: {{ticket_number}} {{secret}}"})
	got, err = stored.Render(TypeTicketIssued, map[string]string{"name": "N", "ticket_number": "TK2", "secret": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "N: TK2 {{secret}}" {
		t.Errorf("stored render = %q", got)
	}

	if _, err := stored.Render("birthday", nil); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestTaka(t *testing.T) {
	tests := map[int64]string{0: "0.00", 5: "0.05", 850: "8.50", 123456: "1234.56", -250: "-2.50"}
	for in, want := range tests {
		if got := Taka(in); got != want {
			t.Errorf("Taka(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["to"] == "8801700000000" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSMSSender(srv.URL, "tok", "VENUE", time.Second, 100, 10)
	if err := s.Send(context.Background(), "01712345678", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["to"] != "8801712345678" || got["message"] != "hi" || got["sender_id"] != "VENUE" {
		t.Errorf("payload = %v", got)
	}

	err := s.Send(context.Background(), "01700000000", "hi")
	var ge *GatewayError
	if !errors.As(err, &ge) || ge.Status != http.StatusBadGateway {
		t.Fatalf("got %v, want GatewayError 502", err)
	}

	wa := NewWhatsAppSender(srv.URL, "tok", time.Second, 100, 10)
	if err := wa.Send(context.Background(), "01812345678", "hello"); err != nil {
		t.Fatalf("whatsapp Send: %v", err)
	}
	if got["messaging_product"] != "whatsapp" || got["to"] != "8801812345678" {
		t.Errorf("whatsapp payload = %v", got)
	}
}
