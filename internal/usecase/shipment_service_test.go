package usecase

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"seald/internal/domain"
)

var trackingPattern = regexp.MustCompile(`^TRK-\d{6}$`)

func createTestShipment(t *testing.T, f *fixture) *domain.Shipment {
	t.Helper()
	shipment, err := f.shipments.Create(context.Background(), CreateShipmentRequest{
		Actor:         testActor,
		SenderName:    "Eastern Produce",
		ReceiverName:  "Hamburg Imports GmbH",
		Origin:        "Nairobi",
		Destination:   "Hamburg",
		DeclaredValue: 12000,
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	return shipment
}

func TestCreateShipmentCreatesPendingDocument(t *testing.T) {
	f := newFixture(t)
	shipment := createTestShipment(t, f)

	if !trackingPattern.MatchString(shipment.TrackingNumber) {
		t.Fatalf("tracking number %q does not match TRK-######", shipment.TrackingNumber)
	}
	if shipment.TransportStatus != domain.TransportCreated {
		t.Fatalf("transport status = %s, want Created", shipment.TransportStatus)
	}

	doc, err := f.store.Get(context.Background(), shipment.ID)
	if err != nil {
		t.Fatalf("document not created: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("document status = %s, want Pending", doc.Status)
	}
	if doc.Digest != domain.PendingLock {
		t.Fatalf("document digest = %q, want sentinel", doc.Digest)
	}
}

func TestCreateShipmentValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.shipments.Create(context.Background(), CreateShipmentRequest{Actor: testActor, SenderName: "", ReceiverName: "X"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestListJoinsDocumentState(t *testing.T) {
	f := newFixture(t)
	shipment := createTestShipment(t, f)
	f.draft(t, shipment.ID)
	f.approve(t, shipment.ID)

	summaries, err := f.shipments.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("len = %d, want 1", len(summaries))
	}
	if summaries[0].DocumentStatus != domain.StatusApproved {
		t.Fatalf("document status = %s, want Approved", summaries[0].DocumentStatus)
	}
	if summaries[0].Digest == domain.PendingLock {
		t.Fatal("digest still sentinel after approval")
	}
}

func TestDispatchAndDeliveryTransitions(t *testing.T) {
	f := newFixture(t)
	shipment := createTestShipment(t, f)
	ctx := context.Background()

	dispatched, err := f.shipments.Dispatch(ctx, shipment.ID, testActor)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dispatched.TransportStatus != domain.TransportInTransit {
		t.Fatalf("status = %s, want In-Transit", dispatched.TransportStatus)
	}

	_, err = f.shipments.Dispatch(ctx, shipment.ID, testActor)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second dispatch = %v, want ErrInvalidState", err)
	}

	delivered, err := f.shipments.ConfirmDelivery(ctx, shipment.ID, testActor)
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if delivered.TransportStatus != domain.TransportDelivered {
		t.Fatalf("status = %s, want Delivered", delivered.TransportStatus)
	}
	if !f.ledger.deliveries[shipment.ID] {
		t.Fatal("delivery not recorded on the ledger")
	}
}

func TestDeliveryRequiresInTransit(t *testing.T) {
	f := newFixture(t)
	shipment := createTestShipment(t, f)

	_, err := f.shipments.ConfirmDelivery(context.Background(), shipment.ID, testActor)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestDeliveryLedgerFailureLeavesInTransit(t *testing.T) {
	f := newFixture(t)
	shipment := createTestShipment(t, f)
	ctx := context.Background()
	if _, err := f.shipments.Dispatch(ctx, shipment.ID, testActor); err != nil {
		t.Fatal(err)
	}
	f.ledger.deliverErr = domain.ErrLedgerUnavailable

	_, err := f.shipments.ConfirmDelivery(ctx, shipment.ID, testActor)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	got, err := f.shipments.Get(ctx, shipment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TransportStatus != domain.TransportInTransit {
		t.Fatalf("status = %s, want In-Transit", got.TransportStatus)
	}
}
