package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/subwire/agentpay/internal/config"
)

// Call is one contract invocation inside a relayed batch.
type Call struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

type sendCallsRequest struct {
	Version      string         `json:"version"`
	ChainID      string         `json:"chainId"`
	From         string         `json:"from"`
	Calls        []Call         `json:"calls"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Signature    string         `json:"signature,omitempty"`
}

type callReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
}

type callsStatus struct {
	Status   string        `json:"status"`
	Receipts []callReceipt `json:"receipts"`
}

// Receipt is the terminal result of a relayed batch: whether the included
// transaction succeeded, and its hash.
type Receipt struct {
	Success         bool
	TransactionHash string
}

const txReceiptStatusSuccess = "0x1"

// RelayClient submits sponsored batches through a wallet_sendCalls bundler
// and blocks until the batch is included. The relay funds gas from its own
// account; the subscriber never signs a transaction here.
type RelayClient struct {
	rpc          *rpc.Client
	signer       *Signer
	paymasterURL string
	pollInterval time.Duration
}

func NewRelayClient(ctx context.Context, bundlerURL string, signer *Signer, paymasterURL string) (*RelayClient, error) {
	client, err := rpc.DialContext(ctx, bundlerURL)
	if err != nil {
		return nil, fmt.Errorf("dial bundler: %w", err)
	}
	return &RelayClient{
		rpc:          client,
		signer:       signer,
		paymasterURL: paymasterURL,
		pollInterval: config.ChainPollInterval,
	}, nil
}

func (c *RelayClient) Close() {
	c.rpc.Close()
}

// Execute submits the calls and polls until the relay reports a terminal
// status or ctx expires. A revert comes back as Success=false; transport
// failures and deadlines come back as errors. Callers treat both as a failed
// collection.
func (c *RelayClient) Execute(ctx context.Context, chainID *big.Int, calls []Call) (Receipt, error) {
	req := sendCallsRequest{
		Version: "1.0",
		ChainID: hexutil.EncodeBig(chainID),
		From:    c.signer.Address().Hex(),
		Calls:   calls,
	}
	if c.paymasterURL != "" {
		req.Capabilities = map[string]any{
			"paymasterService": map[string]any{"url": c.paymasterURL},
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal calls: %w", err)
	}
	req.Signature, err = c.signer.SignPayload(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("authorize calls: %w", err)
	}

	var batchID string
	if err := c.rpc.CallContext(ctx, &batchID, "wallet_sendCalls", req); err != nil {
		return Receipt{}, fmt.Errorf("submit calls: %w", err)
	}

	log.Debug().Str("batchId", batchID).Int("calls", len(calls)).Msg("relay batch submitted")

	return c.waitForReceipt(ctx, batchID)
}

func (c *RelayClient) waitForReceipt(ctx context.Context, batchID string) (Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status callsStatus
		if err := c.rpc.CallContext(ctx, &status, "wallet_getCallsStatus", batchID); err != nil {
			return Receipt{}, fmt.Errorf("poll calls status: %w", err)
		}

		switch status.Status {
		case "CONFIRMED":
			if len(status.Receipts) == 0 {
				return Receipt{}, fmt.Errorf("relay confirmed batch %s without receipts", batchID)
			}
			r := status.Receipts[0]
			return Receipt{
				Success:         r.Status == txReceiptStatusSuccess,
				TransactionHash: r.TransactionHash,
			}, nil
		case "FAILED":
			var hash string
			if len(status.Receipts) > 0 {
				hash = status.Receipts[0].TransactionHash
			}
			return Receipt{Success: false, TransactionHash: hash}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("wait for relay receipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
