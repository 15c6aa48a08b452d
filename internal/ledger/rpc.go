package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"govtender/internal/config"
	"govtender/internal/models"
)

const SignatureHeader = "X-Ledger-Signature"

// RPCClient talks JSON-RPC 2.0 to a ledger gateway in front of the tender
// contract. Every request body is signed with HMAC-SHA256.
type RPCClient struct {
	client   *http.Client
	url      string
	key      []byte
	contract string
	seq      atomic.Uint64
}

type RPCOption func(*RPCClient)

func WithHTTPClient(c *http.Client) RPCOption {
	return func(r *RPCClient) {
		r.client = c
	}
}

// NewRPCClient does not set an http.Client timeout; calls are bounded by
// the context, see Guard.
func NewRPCClient(cfg config.LedgerConfig, opts ...RPCOption) *RPCClient {
	r := &RPCClient{
		client:   &http.Client{},
		url:      cfg.RPCURL,
		key:      []byte(cfg.SigningKey),
		contract: cfg.ContractAddress,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Id      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type recordParams struct {
	Contract string `json:"contract"`
	Event    Event  `json:"event"`
}

type tenderParams struct {
	Contract string `json:"contract"`
	Id       string `json:"id"`
}

func (r *RPCClient) Record(ctx context.Context, ev Event) (Receipt, error) {
	var receipt Receipt
	err := r.call(ctx, "ledger_record", recordParams{Contract: r.contract, Event: ev}, &receipt)
	if err != nil {
		return receipt, fmt.Errorf("ledger.RPCClient.Record: %w", err)
	}
	if receipt.Id == "" {
		return receipt, fmt.Errorf("ledger.RPCClient.Record: empty receipt id")
	}
	return receipt, nil
}

func (r *RPCClient) Tender(ctx context.Context, ledgerId string) (models.LedgerSnapshot, error) {
	var snap models.LedgerSnapshot
	err := r.call(ctx, "ledger_getTender", tenderParams{Contract: r.contract, Id: ledgerId}, &snap)
	if err != nil {
		return snap, fmt.Errorf("ledger.RPCClient.Tender: %w", err)
	}
	return snap, nil
}

func (r *RPCClient) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Id:      r.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(r.key, body))

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger gateway returned status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	err = json.Unmarshal(data, &rpcResp)
	if err != nil {
		return fmt.Errorf("could not decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
