package chainrpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"seald/internal/domain"
	"seald/internal/infra/keys/soft"
)

func testSigner(t *testing.T) Signer {
	t.Helper()
	signer, err := soft.NewSignerFromSeedHex(strings.Repeat("01", ed25519.SeedSize))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

type scriptedNode struct {
	t        *testing.T
	digests  map[string]string
	confirms map[string]int
	// pendingPolls is how many tx_receipt calls report pending before
	// the node reports confirmed.
	pendingPolls int
	registerErr  *rpcError
	failTx       bool
	netErr       error
	status       int
}

func (n *scriptedNode) do(req *http.Request) (*http.Response, error) {
	if n.netErr != nil {
		return nil, n.netErr
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		n.t.Fatalf("read request: %v", err)
	}
	var rpc rpcRequest
	if err := json.Unmarshal(body, &rpc); err != nil {
		n.t.Fatalf("unmarshal request: %v", err)
	}

	if n.status != 0 && n.status != http.StatusOK {
		return httpResponse(n.status, `{}`), nil
	}

	switch rpc.Method {
	case "doc_register":
		if n.registerErr != nil {
			return rpcErrorResponse(*n.registerErr), nil
		}
		params := decodeParams[registerParams](n.t, rpc.Params)
		if params.Signature == "" || params.PublicKey == "" {
			n.t.Fatal("register params missing signature")
		}
		if n.digests == nil {
			n.digests = make(map[string]string)
		}
		n.digests[params.DocumentID] = params.Digest
		return rpcResultResponse(n.t, "tx-"+params.DocumentID), nil
	case "delivery_confirm":
		params := decodeParams[deliveryParams](n.t, rpc.Params)
		return rpcResultResponse(n.t, "tx-deliver-"+params.ShipmentID), nil
	case "doc_lookup":
		params := decodeParams[lookupParams](n.t, rpc.Params)
		digest, ok := n.digests[params.DocumentID]
		if !ok {
			return rpcResultResponse[any](n.t, nil), nil
		}
		return rpcResultResponse(n.t, digest), nil
	case "tx_receipt":
		params := decodeParams[receiptParams](n.t, rpc.Params)
		if n.confirms == nil {
			n.confirms = make(map[string]int)
		}
		n.confirms[params.TxID]++
		if n.failTx {
			return rpcResultResponse(n.t, txReceipt{TxID: params.TxID, Status: receiptStatusFailed}), nil
		}
		if n.confirms[params.TxID] <= n.pendingPolls {
			return rpcResultResponse(n.t, txReceipt{TxID: params.TxID, Status: receiptStatusPending}), nil
		}
		return rpcResultResponse(n.t, txReceipt{TxID: params.TxID, Status: receiptStatusConfirmed, BlockNumber: 42}), nil
	default:
		n.t.Fatalf("unexpected method %s", rpc.Method)
		return nil, nil
	}
}

func decodeParams[T any](t *testing.T, raw any) T {
	t.Helper()
	payload, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	return out
}

func rpcResultResponse[T any](t *testing.T, result T) *http.Response {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return httpResponse(http.StatusOK, string(payload))
}

func rpcErrorResponse(rpcErr rpcError) *http.Response {
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"error":{"code":%d,"message":%q}}`, rpcErr.Code, rpcErr.Message)
	return httpResponse(http.StatusOK, payload)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, node *scriptedNode) *Client {
	t.Helper()
	client, err := NewClient("http://ledger.local/rpc", "0xc0ffee", "31337", testSigner(t), time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.httpDo = node.do
	return client
}

func TestAnchorWaitsForConfirmation(t *testing.T) {
	node := &scriptedNode{t: t, pendingPolls: 2}
	client := newTestClient(t, node)

	conf, err := client.Anchor(context.Background(), "doc-1", "0xabc")
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if conf.TxID != "tx-doc-1" || conf.BlockNumber != 42 || conf.ChainID != "31337" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if node.confirms["tx-doc-1"] != 3 {
		t.Fatalf("expected 3 receipt polls, got %d", node.confirms["tx-doc-1"])
	}
}

func TestAnchorLookupRoundTrip(t *testing.T) {
	node := &scriptedNode{t: t}
	client := newTestClient(t, node)
	ctx := context.Background()

	if _, err := client.Lookup(ctx, "doc-1"); !errors.Is(err, domain.ErrNotAnchored) {
		t.Fatalf("lookup before anchor = %v, want ErrNotAnchored", err)
	}
	if _, err := client.Anchor(ctx, "doc-1", "0xabc"); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	digest, err := client.Lookup(ctx, "doc-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if digest != "0xabc" {
		t.Fatalf("lookup = %s, want 0xabc", digest)
	}
}

func TestAnchorNetworkFailureIsUnavailable(t *testing.T) {
	node := &scriptedNode{t: t, netErr: errors.New("connection refused")}
	client := newTestClient(t, node)
	_, err := client.Anchor(context.Background(), "doc-1", "0xabc")
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("anchor = %v, want ErrLedgerUnavailable", err)
	}
}

func TestAnchorRPCErrorIsRejected(t *testing.T) {
	node := &scriptedNode{t: t, registerErr: &rpcError{Code: -32000, Message: "unauthorized signer"}}
	client := newTestClient(t, node)
	_, err := client.Anchor(context.Background(), "doc-1", "0xabc")
	if !errors.Is(err, domain.ErrLedgerRejected) {
		t.Fatalf("anchor = %v, want ErrLedgerRejected", err)
	}
}

func TestAnchorRevertedTxIsRejected(t *testing.T) {
	node := &scriptedNode{t: t, failTx: true}
	client := newTestClient(t, node)
	_, err := client.Anchor(context.Background(), "doc-1", "0xabc")
	if !errors.Is(err, domain.ErrLedgerRejected) {
		t.Fatalf("anchor = %v, want ErrLedgerRejected", err)
	}
}

func TestAnchorTimeoutIsUnavailable(t *testing.T) {
	node := &scriptedNode{t: t, pendingPolls: 1 << 30}
	client := newTestClient(t, node)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Anchor(ctx, "doc-1", "0xabc")
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("anchor = %v, want ErrLedgerUnavailable", err)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	node := &scriptedNode{t: t, status: http.StatusBadGateway}
	client := newTestClient(t, node)
	_, err := client.Lookup(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("lookup = %v, want ErrLedgerUnavailable", err)
	}
}
