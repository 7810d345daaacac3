package config

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultOperatorAddress receives the cost share on pay_costs.
const DefaultOperatorAddress = "0x57e56B49dcF7540a991ac6B4C9597eBa892A7168"

// ChainConfig configures the blockchain collaborator.
type ChainConfig struct {
	// RPCURL selects the JSON-RPC backend. Empty runs fully offline.
	RPCURL           string `json:"rpc_url"`
	MasterPrivateKey string `json:"master_private_key"`
	// SendOnchain turns simulated deposits and payouts into real transfers.
	SendOnchain           bool    `json:"send_onchain"`
	OperatorAddress       string  `json:"operator_address"`
	GasBufferETH          float64 `json:"gas_buffer_eth"`
	HistoryBlocks         int     `json:"history_blocks"`
	HistoryLimit          int     `json:"history_limit"`
	ReceiptTimeoutSeconds int     `json:"receipt_timeout_seconds"`
}

func (c *ChainConfig) SetDefaults() {
	if c.OperatorAddress == "" {
		c.OperatorAddress = DefaultOperatorAddress
	}
	if c.GasBufferETH == 0 {
		c.GasBufferETH = 0.001
	}
	if c.HistoryBlocks <= 0 {
		c.HistoryBlocks = 50
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.ReceiptTimeoutSeconds <= 0 {
		c.ReceiptTimeoutSeconds = 120
	}
}

func (c ChainConfig) Validate() error {
	if !common.IsHexAddress(c.OperatorAddress) {
		return errors.New("operator_address is not a hex address")
	}
	if c.GasBufferETH < 0 {
		return errors.New("gas_buffer_eth must not be negative")
	}
	if c.SendOnchain {
		if c.RPCURL == "" {
			return errors.New("send_onchain requires rpc_url")
		}
		if c.MasterPrivateKey == "" {
			return errors.New("send_onchain requires master_private_key")
		}
	}
	return nil
}

func (c ChainConfig) GasBuffer() decimal.Decimal { return decimal.NewFromFloat(c.GasBufferETH) }

func (c ChainConfig) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSeconds) * time.Second
}
