package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"seald/internal/domain"
)

// Signer produces the authorization signature for ledger writes. Key
// material stays behind this interface; the client never sees a private key.
type Signer interface {
	Sign(ctx context.Context, payload []byte) (sig []byte, pubKey []byte, err error)
}

// Client talks JSON-RPC 2.0 to the ledger node that fronts the shipment
// registry contract. Anchor blocks until the node reports the transaction
// finalized; submission alone is never treated as success.
type Client struct {
	rpcURL      string
	contract    string
	chainID     string
	signer      Signer
	confirmPoll time.Duration
	httpDo      func(*http.Request) (*http.Response, error)
	nextID      atomic.Int64
}

func NewClient(rpcURL, contract, chainID string, signer Signer, confirmPoll time.Duration, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, errors.New("ledger rpc url is required")
	}
	if strings.TrimSpace(contract) == "" {
		return nil, errors.New("ledger contract address is required")
	}
	if signer == nil {
		return nil, errors.New("ledger signer is required")
	}
	if confirmPoll <= 0 {
		confirmPoll = 250 * time.Millisecond
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		rpcURL:      strings.TrimRight(rpcURL, "/"),
		contract:    contract,
		chainID:     chainID,
		signer:      signer,
		confirmPoll: confirmPoll,
		httpDo:      doer,
	}, nil
}

type registerParams struct {
	Contract   string `json:"contract"`
	DocumentID string `json:"document_id"`
	Digest     string `json:"digest"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
}

type deliveryParams struct {
	Contract   string `json:"contract"`
	ShipmentID string `json:"shipment_id"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
}

type lookupParams struct {
	Contract   string `json:"contract"`
	DocumentID string `json:"document_id"`
}

type receiptParams struct {
	TxID string `json:"tx_id"`
}

type txReceipt struct {
	TxID        string `json:"tx_id"`
	Status      string `json:"status"`
	BlockNumber int64  `json:"block_number"`
}

const (
	receiptStatusPending   = "pending"
	receiptStatusConfirmed = "confirmed"
	receiptStatusFailed    = "failed"
)

func (c *Client) Anchor(ctx context.Context, documentID, digest string) (domain.AnchorConfirmation, error) {
	if documentID == "" || digest == "" {
		return domain.AnchorConfirmation{}, domain.ErrInvalidInput
	}
	sig, pubKey, err := c.signer.Sign(ctx, []byte(documentID+"\n"+digest))
	if err != nil {
		return domain.AnchorConfirmation{}, fmt.Errorf("sign anchor payload: %w", err)
	}
	var txID string
	err = c.call(ctx, "doc_register", registerParams{
		Contract:   c.contract,
		DocumentID: documentID,
		Digest:     digest,
		Signature:  fmt.Sprintf("%x", sig),
		PublicKey:  fmt.Sprintf("%x", pubKey),
	}, &txID)
	if err != nil {
		return domain.AnchorConfirmation{}, err
	}
	return c.awaitConfirmation(ctx, txID)
}

func (c *Client) ConfirmDelivery(ctx context.Context, shipmentID string) (domain.AnchorConfirmation, error) {
	if shipmentID == "" {
		return domain.AnchorConfirmation{}, domain.ErrInvalidInput
	}
	sig, pubKey, err := c.signer.Sign(ctx, []byte("deliver\n"+shipmentID))
	if err != nil {
		return domain.AnchorConfirmation{}, fmt.Errorf("sign delivery payload: %w", err)
	}
	var txID string
	err = c.call(ctx, "delivery_confirm", deliveryParams{
		Contract:   c.contract,
		ShipmentID: shipmentID,
		Signature:  fmt.Sprintf("%x", sig),
		PublicKey:  fmt.Sprintf("%x", pubKey),
	}, &txID)
	if err != nil {
		return domain.AnchorConfirmation{}, err
	}
	return c.awaitConfirmation(ctx, txID)
}

func (c *Client) Lookup(ctx context.Context, documentID string) (string, error) {
	if documentID == "" {
		return "", domain.ErrInvalidInput
	}
	var digest *string
	err := c.call(ctx, "doc_lookup", lookupParams{Contract: c.contract, DocumentID: documentID}, &digest)
	if err != nil {
		return "", err
	}
	if digest == nil || *digest == "" {
		return "", domain.ErrNotAnchored
	}
	return *digest, nil
}

// awaitConfirmation is the tx.wait step: poll the receipt until the node
// reports the write finalized. Context expiry surfaces as
// ErrLedgerUnavailable so a timed-out anchor is never mistaken for success.
func (c *Client) awaitConfirmation(ctx context.Context, txID string) (domain.AnchorConfirmation, error) {
	for {
		var receipt txReceipt
		if err := c.call(ctx, "tx_receipt", receiptParams{TxID: txID}, &receipt); err != nil {
			return domain.AnchorConfirmation{}, err
		}
		switch receipt.Status {
		case receiptStatusConfirmed:
			return domain.AnchorConfirmation{
				TxID:        txID,
				BlockNumber: receipt.BlockNumber,
				ChainID:     c.chainID,
				ConfirmedAt: time.Now().UTC(),
			}, nil
		case receiptStatusFailed:
			return domain.AnchorConfirmation{}, fmt.Errorf("transaction %s reverted: %w", txID, domain.ErrLedgerRejected)
		case receiptStatusPending, "":
		default:
			return domain.AnchorConfirmation{}, fmt.Errorf("unknown receipt status %q: %w", receipt.Status, domain.ErrLedgerRejected)
		}
		select {
		case <-ctx.Done():
			return domain.AnchorConfirmation{}, fmt.Errorf("await confirmation: %w", domain.ErrLedgerUnavailable)
		case <-time.After(c.confirmPoll):
		}
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", method, err, domain.ErrLedgerUnavailable)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, domain.ErrLedgerUnavailable)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s: node returned %d: %w", method, resp.StatusCode, domain.ErrLedgerUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: node returned %d: %w", method, resp.StatusCode, domain.ErrLedgerRejected)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("%s: invalid response: %w", method, domain.ErrLedgerUnavailable)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: rpc error %d %s: %w", method, decoded.Error.Code, decoded.Error.Message, domain.ErrLedgerRejected)
	}
	if result != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, domain.ErrLedgerUnavailable)
		}
	}
	return nil
}
