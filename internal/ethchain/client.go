// Package ethchain reads ERC20 token facts over Ethereum JSON-RPC.
package ethchain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"token-sentinel/internal/scan"
)

// ERC20 function selectors.
var (
	selName        = common.Hex2Bytes("06fdde03") // name()
	selSymbol      = common.Hex2Bytes("95d89b41") // symbol()
	selDecimals    = common.Hex2Bytes("313ce567") // decimals()
	selTotalSupply = common.Hex2Bytes("18160ddd") // totalSupply()
)

// Client implements scan.ChainCollaborator against an Ethereum node.
type Client struct {
	eth *ethclient.Client
	log zerolog.Logger
}

// Dial connects to the RPC endpoint.
func Dial(ctx context.Context, rpcURL string, logger zerolog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return &Client{
		eth: eth,
		log: logger.With().Str("component", "ethchain").Logger(),
	}, nil
}

// NewClient wraps an existing ethclient connection.
func NewClient(eth *ethclient.Client, logger zerolog.Logger) *Client {
	return &Client{
		eth: eth,
		log: logger.With().Str("component", "ethchain").Logger(),
	}
}

// Compile-time interface check.
var _ scan.ChainCollaborator = (*Client)(nil)

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// FetchTokenFacts reads the on-chain ERC20 field group. An address with no
// deployed code fails with scan.ErrInvalidTarget; individual field reads
// degrade to zero values.
func (c *Client) FetchTokenFacts(ctx context.Context, address string) (*scan.TokenFacts, error) {
	addr := common.HexToAddress(address)

	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("read contract code: %w", err)
	}
	if len(code) == 0 {
		return nil, scan.ErrInvalidTarget
	}

	facts := &scan.TokenFacts{}

	if name, err := c.callString(ctx, addr, selName); err == nil {
		facts.Name = name
	} else {
		c.log.Debug().Str("address", address).Err(err).Msg("name() call failed")
	}
	if symbol, err := c.callString(ctx, addr, selSymbol); err == nil {
		facts.Symbol = symbol
	} else {
		c.log.Debug().Str("address", address).Err(err).Msg("symbol() call failed")
	}

	decimals, err := c.callUint(ctx, addr, selDecimals)
	if err != nil {
		return nil, fmt.Errorf("decimals() call: %w", err)
	}
	facts.Decimals = int(decimals.Int64())

	supply, err := c.callUint(ctx, addr, selTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("totalSupply() call: %w", err)
	}
	facts.TotalSupply = normalizeSupply(supply, facts.Decimals)

	return facts, nil
}

func (c *Client) callUint(ctx context.Context, addr common.Address, sel []byte) (*big.Int, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: sel}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty return data")
	}
	return new(big.Int).SetBytes(out), nil
}

func (c *Client) callString(ctx context.Context, addr common.Address, sel []byte) (string, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: sel}, nil)
	if err != nil {
		return "", err
	}
	return decodeString(out)
}

// decodeString decodes an ABI string return. Some early tokens return a raw
// bytes32 instead; both layouts are handled.
func decodeString(out []byte) (string, error) {
	if len(out) == 0 {
		return "", fmt.Errorf("empty return data")
	}
	if len(out) == 32 {
		return strings.TrimRight(string(out), "\x00"), nil
	}
	if len(out) < 64 {
		return "", fmt.Errorf("short return data: %d bytes", len(out))
	}

	offset := new(big.Int).SetBytes(out[:32]).Uint64()
	if offset+32 > uint64(len(out)) {
		return "", fmt.Errorf("string offset out of range")
	}
	length := new(big.Int).SetBytes(out[offset : offset+32]).Uint64()
	if offset+32+length > uint64(len(out)) {
		return "", fmt.Errorf("string length out of range")
	}
	return string(out[offset+32 : offset+32+length]), nil
}

// normalizeSupply converts a raw uint256 supply into whole tokens.
func normalizeSupply(raw *big.Int, decimals int) float64 {
	if decimals <= 0 {
		f, _ := new(big.Float).SetInt(raw).Float64()
		return f
	}
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()
	return f
}
