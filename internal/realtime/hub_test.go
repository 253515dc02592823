package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/finwatch/amlguard/internal/alerts"
	"github.com/finwatch/amlguard/internal/fusion"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventVerdict, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAlert, EventIntegrityViolation},
	}}

	alertEvent := &Event{Type: EventAlert}
	violationEvent := &Event{Type: EventIntegrityViolation}
	verdictEvent := &Event{Type: EventVerdict}

	if !h.shouldSend(client, alertEvent) {
		t.Error("Should receive alert events")
	}
	if !h.shouldSend(client, violationEvent) {
		t.Error("Should receive integrity_violation events")
	}
	if h.shouldSend(client, verdictEvent) {
		t.Error("Should NOT receive verdict events")
	}
}

func TestShouldSend_RoleFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Roles: []string{string(alerts.RoleCompliance)},
	}}

	complianceAlert := &Event{
		Type: EventAlert,
		Data: alerts.Decision{Role: alerts.RoleCompliance, AlertType: alerts.TypeStructuringPattern},
	}
	legalAlert := &Event{
		Type: EventAlert,
		Data: alerts.Decision{Role: alerts.RoleLegal, AlertType: alerts.TypeSanctionsBreach},
	}
	verdictEvent := &Event{Type: EventVerdict, Data: fusion.Result{Score: 10}}

	if !h.shouldSend(client, complianceAlert) {
		t.Error("Should receive compliance alerts")
	}
	if h.shouldSend(client, legalAlert) {
		t.Error("Should NOT receive legal alerts")
	}
	// Role filter only applies to alerts; verdicts still flow.
	if !h.shouldSend(client, verdictEvent) {
		t.Error("Role filter should not block verdict events")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{MinScore: 60}}

	low := &Event{Type: EventVerdict, Data: fusion.Result{Score: 30, Band: fusion.BandMedium}}
	exact := &Event{Type: EventVerdict, Data: fusion.Result{Score: 60, Band: fusion.BandHigh}}
	high := &Event{Type: EventVerdict, Data: fusion.Result{Score: 85, Band: fusion.BandCritical}}

	if h.shouldSend(client, low) {
		t.Error("Should NOT receive verdicts below min score")
	}
	if !h.shouldSend(client, exact) {
		t.Error("Should receive verdicts at min score")
	}
	if !h.shouldSend(client, high) {
		t.Error("Should receive verdicts above min score")
	}
}

// ---------------------------------------------------------------------------
// Publisher tests
// ---------------------------------------------------------------------------

func TestPublishVerdictBroadcasts(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.PublishVerdict("txn_1", fusion.Result{Score: 42.5, Band: fusion.BandMedium})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.Type != EventVerdict {
			t.Errorf("Type = %q, want verdict", event.Type)
		}
		if event.TransactionID != "txn_1" {
			t.Errorf("TransactionID = %q, want txn_1", event.TransactionID)
		}
	case <-time.After(time.Second):
		t.Fatal("No event received")
	}
}

func TestPublishAlertBroadcasts(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.PublishAlert("txn_2", alerts.Decision{
		Role:      alerts.RoleLegal,
		AlertType: alerts.TypeSanctionsBreach,
	})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.Type != EventAlert {
			t.Errorf("Type = %q, want alert", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("No event received")
	}
}

func TestPublishIntegrityViolationBroadcasts(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.PublishIntegrityViolation("txn_3")

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.Type != EventIntegrityViolation {
			t.Errorf("Type = %q, want integrity_violation", event.Type)
		}
		if event.TransactionID != "txn_3" {
			t.Errorf("TransactionID = %q, want txn_3", event.TransactionID)
		}
	case <-time.After(time.Second):
		t.Fatal("No event received")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected closed send channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Client send channel not closed on shutdown")
	}

	// After shutdown the hub's done channel is closed.
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("Hub done channel not closed")
	}
}

func TestStats(t *testing.T) {
	h := testHub()
	stats := h.Stats()
	if stats["connectedClients"] != 0 {
		t.Errorf("connectedClients = %v, want 0", stats["connectedClients"])
	}
}
