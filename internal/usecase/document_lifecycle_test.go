package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"seald/internal/domain"
	"seald/internal/infra/bytestore"
	"seald/internal/infra/digest"
	"seald/internal/infra/docmem"
	"seald/internal/infra/render"
)

type fakeLedger struct {
	mu          sync.Mutex
	anchors     map[string]string
	deliveries  map[string]bool
	anchorCalls int
	anchorErr   error
	lookupErr   error
	deliverErr  error
	// anchorGate, when set, runs before Anchor touches state so a test
	// can hold an approve in flight while other calls proceed.
	anchorGate func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		anchors:    make(map[string]string),
		deliveries: make(map[string]bool),
	}
}

func (l *fakeLedger) Anchor(ctx context.Context, documentID, digest string) (domain.AnchorConfirmation, error) {
	if l.anchorGate != nil {
		l.anchorGate()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ctx.Err() != nil {
		return domain.AnchorConfirmation{}, fmt.Errorf("anchor canceled: %w", domain.ErrLedgerUnavailable)
	}
	l.anchorCalls++
	if l.anchorErr != nil {
		return domain.AnchorConfirmation{}, l.anchorErr
	}
	l.anchors[documentID] = digest
	return domain.AnchorConfirmation{
		TxID:        fmt.Sprintf("0xtx%04d", l.anchorCalls),
		BlockNumber: int64(l.anchorCalls),
		ChainID:     "test-chain",
	}, nil
}

func (l *fakeLedger) Lookup(ctx context.Context, documentID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return "", l.lookupErr
	}
	digest, ok := l.anchors[documentID]
	if !ok {
		return "", domain.ErrNotAnchored
	}
	return digest, nil
}

func (l *fakeLedger) ConfirmDelivery(ctx context.Context, shipmentID string) (domain.AnchorConfirmation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deliverErr != nil {
		return domain.AnchorConfirmation{}, l.deliverErr
	}
	l.deliveries[shipmentID] = true
	return domain.AnchorConfirmation{TxID: "0xdelivery", ChainID: "test-chain"}, nil
}

func (l *fakeLedger) writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.anchorCalls
}

func (l *fakeLedger) anchorOf(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.anchors[id]
}

type fixture struct {
	store     *docmem.Store
	bytes     *bytestore.MemoryStore
	ledger    *fakeLedger
	renderer  *render.Renderer
	lifecycle *DocumentLifecycle
	verifier  *VerifyDocument
	demo      *TamperDemo
	shipments *ShipmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docmem.New()
	bytes := bytestore.NewMemoryStore()
	ledger := newFakeLedger()
	renderer := render.NewRenderer()
	audit := &AuditEmitter{Events: store}
	f := &fixture{
		store:    store,
		bytes:    bytes,
		ledger:   ledger,
		renderer: renderer,
	}
	f.lifecycle = &DocumentLifecycle{
		Documents: store,
		Shipments: store.Shipments(),
		Ledger:    ledger,
		Renderer:  renderer,
		Bytes:     bytes,
		Digests:   digest.Engine{},
		Audit:     audit,
	}
	f.verifier = &VerifyDocument{
		Documents: store,
		Bytes:     bytes,
		Ledger:    ledger,
		Digests:   digest.Engine{},
	}
	f.demo = &TamperDemo{
		Documents: store,
		Bytes:     bytes,
		Digests:   digest.Engine{},
		Audit:     audit,
	}
	f.shipments = &ShipmentService{
		Shipments: store.Shipments(),
		Documents: store,
		Ledger:    ledger,
		Audit:     audit,
	}
	return f
}

var testActor = domain.Principal{Subject: "admin-key", Role: domain.RoleAdmin}

func (f *fixture) seed(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	err := f.store.CreateShipment(ctx, domain.Shipment{
		ID:              id,
		TrackingNumber:  "TRK-000042",
		SenderName:      "Eastern Produce",
		ReceiverName:    "Hamburg Imports GmbH",
		Origin:          "Nairobi",
		Destination:     "Hamburg",
		DeclaredValue:   12000,
		TransportStatus: domain.TransportCreated,
	})
	if err != nil {
		t.Fatalf("seed shipment: %v", err)
	}
	err = f.store.Create(ctx, domain.ShipmentDocument{
		ID:     id,
		Status: domain.StatusPending,
		Digest: domain.PendingLock,
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
}

func testItems() []domain.LineItem {
	return []domain.LineItem{
		{Grade: "AA", Qty: 40, WeightKg: 1000, UnitPrice: 25},
		{Grade: "AB", Qty: 20, WeightKg: 400, UnitPrice: 20},
	}
}

func (f *fixture) draft(t *testing.T, id string) *domain.ShipmentDocument {
	t.Helper()
	doc, err := f.lifecycle.CreateDraft(context.Background(), CreateDraftRequest{
		DocumentID: id,
		Actor:      testActor,
		LineItems:  testItems(),
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return doc
}

func (f *fixture) approve(t *testing.T, id string) *ApproveResponse {
	t.Helper()
	resp, err := f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: id, Actor: testActor})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return resp
}

func TestCreateDraftSetsSentinel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")

	doc := f.draft(t, "doc-1")
	if doc.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want Draft", doc.Status)
	}
	if doc.Digest != domain.PendingLock {
		t.Fatalf("digest = %q, want sentinel", doc.Digest)
	}
	if doc.ByteRef == "" {
		t.Fatal("byteRef not set")
	}
	if _, err := f.bytes.Get(context.Background(), doc.ByteRef); err != nil {
		t.Fatalf("draft bytes not stored: %v", err)
	}
}

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	ctx := context.Background()

	cases := []struct {
		name  string
		items []domain.LineItem
	}{
		{"empty", nil},
		{"missing grade", []domain.LineItem{{Grade: " ", Qty: 1, WeightKg: 10}}},
		{"zero qty", []domain.LineItem{{Grade: "AA", Qty: 0, WeightKg: 10}}},
		{"negative weight", []domain.LineItem{{Grade: "AA", Qty: 1, WeightKg: -1}}},
		{"negative price", []domain.LineItem{{Grade: "AA", Qty: 1, WeightKg: 10, UnitPrice: -5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.lifecycle.CreateDraft(ctx, CreateDraftRequest{DocumentID: "doc-1", Actor: testActor, LineItems: tc.items})
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	_, err := f.lifecycle.CreateDraft(ctx, CreateDraftRequest{DocumentID: "missing", Actor: testActor, LineItems: testItems()})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestCreateDraftRejectedAfterApproval(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	f.approve(t, "doc-1")

	_, err := f.lifecycle.CreateDraft(context.Background(), CreateDraftRequest{DocumentID: "doc-1", Actor: testActor, LineItems: testItems()})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestApproveAnchorsAndLocks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")

	resp := f.approve(t, "doc-1")
	doc := resp.Document
	if doc.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want Approved", doc.Status)
	}
	if !digest.Valid(doc.Digest) {
		t.Fatalf("digest %q is not a valid digest", doc.Digest)
	}
	if doc.LockedAt == nil {
		t.Fatal("lockedAt not set")
	}
	if resp.Confirmation == nil || resp.Confirmation.TxID == "" {
		t.Fatal("missing anchor confirmation")
	}
	if got := f.ledger.anchorOf("doc-1"); got != doc.Digest {
		t.Fatalf("ledger digest = %q, local = %q", got, doc.Digest)
	}

	// the digest must be recomputable from the inputs alone
	shipment, err := f.store.GetShipment(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	rendered, err := f.renderer.Render(*shipment, doc.LineItems, true)
	if err != nil {
		t.Fatal(err)
	}
	if sum := digest.Sum(rendered); sum != doc.Digest {
		t.Fatalf("recomputed digest %q != stored %q", sum, doc.Digest)
	}
}

func TestApproveRequiresDraft(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")

	_, err := f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("approve from Pending = %v, want ErrInvalidState", err)
	}
	if f.ledger.writes() != 0 {
		t.Fatalf("ledger writes = %d, want 0", f.ledger.writes())
	}
}

func TestApproveAnchorFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	f.ledger.anchorErr = domain.ErrLedgerUnavailable

	_, err := f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	doc, err := f.store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want Draft", doc.Status)
	}
	if doc.Digest != domain.PendingLock {
		t.Fatalf("digest = %q, want sentinel", doc.Digest)
	}
}

func TestApproveCancellationLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.lifecycle.Approve(ctx, ApproveRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	doc, err := f.store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want Draft", doc.Status)
	}
}

func TestConcurrentApproveSingleLedgerWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: "doc-1", Actor: testActor})
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInvalidState):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Fatalf("ok = %d invalid = %d, want exactly one of each", ok, invalid)
	}
	if f.ledger.writes() != 1 {
		t.Fatalf("ledger writes = %d, want 1", f.ledger.writes())
	}
}

func TestVerifyDuringApproveSeesNotAnchored(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")

	anchoring := make(chan struct{})
	release := make(chan struct{})
	f.ledger.anchorGate = func() {
		close(anchoring)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: "doc-1", Actor: testActor})
		done <- err
	}()

	// verification takes no locks, so it runs while the anchor write is
	// still in flight and reports the pre-anchor state
	<-anchoring
	result, err := f.verifier.Execute(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("verify during approve: %v", err)
	}
	if result.Outcome != domain.VerificationNotAnchored {
		t.Fatalf("outcome = %s, want NOT_ANCHORED while anchor is in flight", result.Outcome)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err = f.verifier.Execute(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("verify after approve: %v", err)
	}
	if result.Outcome != domain.VerificationAuthentic {
		t.Fatalf("outcome = %s, want AUTHENTIC after confirmation", result.Outcome)
	}
}

func TestApproveReconcilesAfterCrash(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	doc := f.draft(t, "doc-1")

	// simulate a crash after ledger confirmation but before the local
	// write: the ledger holds the final digest, the document is Draft
	shipment, err := f.store.GetShipment(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	final, err := f.renderer.Render(*shipment, doc.LineItems, true)
	if err != nil {
		t.Fatal(err)
	}
	f.ledger.anchors["doc-1"] = digest.Sum(final)

	resp := f.approve(t, "doc-1")
	if resp.Document.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want Approved", resp.Document.Status)
	}
	if resp.Confirmation != nil {
		t.Fatal("expected local completion without a new ledger write")
	}
	if f.ledger.writes() != 0 {
		t.Fatalf("ledger writes = %d, want 0", f.ledger.writes())
	}
}

func TestApproveAfterResetSameContentSkipsSecondWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	f.approve(t, "doc-1")

	if _, err := f.lifecycle.Reset(context.Background(), ResetRequest{DocumentID: "doc-1", Actor: testActor}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.draft(t, "doc-1")
	resp := f.approve(t, "doc-1")
	if resp.Confirmation != nil {
		t.Fatal("identical content should complete without a second write")
	}
	if f.ledger.writes() != 1 {
		t.Fatalf("ledger writes = %d, want 1", f.ledger.writes())
	}
}

func TestApproveAfterResetDifferentContentRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	f.approve(t, "doc-1")

	if _, err := f.lifecycle.Reset(context.Background(), ResetRequest{DocumentID: "doc-1", Actor: testActor}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	changed := []domain.LineItem{{Grade: "PD", Qty: 5, WeightKg: 100, UnitPrice: 15}}
	if _, err := f.lifecycle.CreateDraft(context.Background(), CreateDraftRequest{DocumentID: "doc-1", Actor: testActor, LineItems: changed}); err != nil {
		t.Fatalf("redraft: %v", err)
	}

	_, err := f.lifecycle.Approve(context.Background(), ApproveRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrLedgerRejected) {
		t.Fatalf("err = %v, want ErrLedgerRejected", err)
	}
	if f.ledger.writes() != 1 {
		t.Fatalf("ledger writes = %d, want 1", f.ledger.writes())
	}
	doc, err := f.store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want Draft", doc.Status)
	}
}

func TestApproveAfterResetWithReanchorEnabled(t *testing.T) {
	f := newFixture(t)
	f.lifecycle.AllowReanchor = true
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	first := f.approve(t, "doc-1")

	if _, err := f.lifecycle.Reset(context.Background(), ResetRequest{DocumentID: "doc-1", Actor: testActor}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	changed := []domain.LineItem{{Grade: "PD", Qty: 5, WeightKg: 100, UnitPrice: 15}}
	if _, err := f.lifecycle.CreateDraft(context.Background(), CreateDraftRequest{DocumentID: "doc-1", Actor: testActor, LineItems: changed}); err != nil {
		t.Fatalf("redraft: %v", err)
	}

	resp := f.approve(t, "doc-1")
	if resp.Confirmation == nil {
		t.Fatal("expected a new ledger write")
	}
	if f.ledger.writes() != 2 {
		t.Fatalf("ledger writes = %d, want 2", f.ledger.writes())
	}
	if resp.Document.Digest == first.Document.Digest {
		t.Fatal("digest did not change with the content")
	}
	if got := f.ledger.anchorOf("doc-1"); got != resp.Document.Digest {
		t.Fatalf("ledger digest = %q, local = %q", got, resp.Document.Digest)
	}
}

func TestRejectReturnsToPending(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	drafted := f.draft(t, "doc-1")

	doc, err := f.lifecycle.Reject(context.Background(), RejectRequest{DocumentID: "doc-1", Actor: testActor})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want Pending", doc.Status)
	}
	if doc.Digest != domain.PendingLock {
		t.Fatalf("digest = %q, want sentinel", doc.Digest)
	}
	if len(doc.LineItems) != len(drafted.LineItems) {
		t.Fatal("line items were not retained")
	}
	if doc.ByteRef != drafted.ByteRef {
		t.Fatal("byteRef was not retained")
	}

	_, err = f.lifecycle.Reject(context.Background(), RejectRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reject from Pending = %v, want ErrInvalidState", err)
	}
}

func TestResetClearsLocalStateOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1")
	f.draft(t, "doc-1")
	approved := f.approve(t, "doc-1")

	doc, err := f.lifecycle.Reset(context.Background(), ResetRequest{DocumentID: "doc-1", Actor: testActor})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want Pending", doc.Status)
	}
	if doc.Digest != domain.PendingLock {
		t.Fatalf("digest = %q, want sentinel", doc.Digest)
	}
	if doc.LockedAt != nil {
		t.Fatal("lockedAt not cleared")
	}
	// the ledger entry stays, by design of the reset asymmetry
	if got := f.ledger.anchorOf("doc-1"); got != approved.Document.Digest {
		t.Fatalf("ledger digest = %q, want %q", got, approved.Document.Digest)
	}

	_, err = f.lifecycle.Reset(context.Background(), ResetRequest{DocumentID: "doc-1", Actor: testActor})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reset from Pending = %v, want ErrInvalidState", err)
	}
}
