// Package treasury is the engine's glue to the external, on-chain
// Treasury contract (§6). It follows the go-ethereum usage surface shown
// in the pack's ChoSanghyuk-blackholedex contractclient_test.go — Dial,
// load an ABI, build a typed caller/transactor — since that repo's own
// contractclient.go implementation was not retrieved into the pack (only
// its test file was); this file is authored fresh against that test's
// call surface and ordinary go-ethereum/accounts/abi/bind idiom.
//
// When the client has no RPC backend (Disabled, or a nil *Client), no call
// reaches the chain: the read methods return nil errors with permissive
// values (HasEnteredSeason true, zero fee and season info), and the
// Distribute* methods return a Distribution whose Err reports that
// distribution is disabled — the "absent env var disables the
// feature" convention carried from the teacher's cmd/worldsim/main.go
// (§6: "The engine treats absent envs as feature disabled rather than
// failing to start").
package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SeasonInfo is the decoded result of getSeasonInfo (§6).
type SeasonInfo struct {
	Season        *big.Int
	StartTime     *big.Int
	Day           *big.Int
	EntryFee      *big.Int
	PoolUnlockBps *big.Int
}

// Client wraps an ethclient.Client bound to the Reef treasury contract.
// A Client without a backend (Disabled, or a nil *Client) makes no RPC
// calls; the package comment lists what each method returns then.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	chainID  *big.Int
	signer   *bind.TransactOpts
	devMode  bool
}

// Disabled returns a Client with no backend, so no call reaches the chain
// (see the package comment). Used when MONAD_RPC_URL/REEF_CONTRACT_ADDRESS are unset.
func Disabled() *Client {
	return &Client{}
}

// enabled reports whether this client has a live RPC backend.
func (c *Client) enabled() bool { return c != nil && c.eth != nil }

// Dial connects to rpcURL and binds the given contract address. If
// privateKeyHex is non-empty, it is loaded as the restricted distribution
// signer (§6: "Backend holds a restricted signer key, not the custodian
// of funds"). chainID identifies the network for EIP-155 signing.
func Dial(ctx context.Context, rpcURL, contractAddr, privateKeyHex string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("treasury: dial %s: %w", rpcURL, err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("treasury: parse abi: %w", err)
	}
	c := &Client{
		eth:      eth,
		contract: common.HexToAddress(contractAddr),
		abi:      parsedABI,
		chainID:  big.NewInt(chainID),
	}
	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("treasury: parse signer key: %w", err)
		}
		signer, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
		if err != nil {
			return nil, fmt.Errorf("treasury: build signer: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

func (c *Client) boundContract() *bind.BoundContract {
	return bind.NewBoundContract(c.contract, c.abi, c.eth, c.eth, c.eth)
}

// HasEnteredSeason checks on-chain season entry for a wallet (§6),
// bypassed by the caller in dev mode.
func (c *Client) HasEnteredSeason(ctx context.Context, season uint64, wallet string) (bool, error) {
	if !c.enabled() {
		return true, nil
	}
	var out []interface{}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "hasEnteredSeason", new(big.Int).SetUint64(season), common.HexToAddress(wallet))
	if err != nil {
		return false, fmt.Errorf("treasury: hasEnteredSeason: %w", err)
	}
	if len(out) == 0 {
		return false, nil
	}
	entered, _ := out[0].(bool)
	return entered, nil
}

// GetCurrentEntryFee returns the current season's entry fee in wei (§6).
func (c *Client) GetCurrentEntryFee(ctx context.Context) (*big.Int, error) {
	if !c.enabled() {
		return big.NewInt(0), nil
	}
	var out []interface{}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "getCurrentEntryFee")
	if err != nil {
		return nil, fmt.Errorf("treasury: getCurrentEntryFee: %w", err)
	}
	fee, _ := out[0].(*big.Int)
	return fee, nil
}

// GetSeasonInfo returns the current season descriptor (§6).
func (c *Client) GetSeasonInfo(ctx context.Context) (SeasonInfo, error) {
	if !c.enabled() {
		return SeasonInfo{Season: big.NewInt(0), StartTime: big.NewInt(0), Day: big.NewInt(0), EntryFee: big.NewInt(0), PoolUnlockBps: big.NewInt(0)}, nil
	}
	var out []interface{}
	err := c.boundContract().Call(&bind.CallOpts{Context: ctx}, &out, "getSeasonInfo")
	if err != nil {
		return SeasonInfo{}, fmt.Errorf("treasury: getSeasonInfo: %w", err)
	}
	return SeasonInfo{
		Season:        out[0].(*big.Int),
		StartTime:     out[1].(*big.Int),
		Day:           out[2].(*big.Int),
		EntryFee:      out[3].(*big.Int),
		PoolUnlockBps: out[4].(*big.Int),
	}, nil
}

// toAddresses converts wallet strings to common.Address, deduplicating
// invalid (empty) entries per §6 ("Winners array deduplicates invalid
// addresses").
func toAddresses(wallets []string) []common.Address {
	out := make([]common.Address, 0, len(wallets))
	seen := map[common.Address]bool{}
	for _, w := range wallets {
		if w == "" {
			continue
		}
		addr := common.HexToAddress(w)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func toBigInts(bps []int) []*big.Int {
	out := make([]*big.Int, len(bps))
	for i, v := range bps {
		out[i] = big.NewInt(int64(v))
	}
	return out
}

// Distribution is the outcome of a fire-and-forget distribution call,
// logged to the transaction_logs table by the caller (§9, §5).
type Distribution struct {
	Method string
	TxHash string
	Err    error
	At     time.Time
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) Distribution {
	d := Distribution{Method: method, At: time.Now().UTC()}
	if !c.enabled() || c.signer == nil {
		d.Err = fmt.Errorf("treasury: distribution disabled (no signer configured)")
		return d
	}
	opts := *c.signer
	opts.Context = ctx
	tx, err := c.boundContract().Transact(&opts, method, args...)
	if err != nil {
		d.Err = fmt.Errorf("treasury: %s: %w", method, err)
		return d
	}
	d.TxHash = tx.Hash().Hex()
	return d
}

// DistributeLeviathan requests the hybrid payout split for a boss kill
// (§4.8, §6). Must be called fire-and-forget — never awaited inside an
// action response path (§5).
func (c *Client) DistributeLeviathan(ctx context.Context, spawnID uint64, winnerWallets []string, sharesBps []int, totalDamage int) Distribution {
	addrs := toAddresses(winnerWallets)
	return c.transact(ctx, "distributeLeviathan", new(big.Int).SetUint64(spawnID), addrs, toBigInts(sharesBps), big.NewInt(int64(totalDamage)))
}

// DistributeNull requests The Null's damage-weighted MON payout (§4.9, §6).
func (c *Client) DistributeNull(ctx context.Context, winnerWallets []string, sharesBps []int, totalDamage int) Distribution {
	addrs := toAddresses(winnerWallets)
	return c.transact(ctx, "distributeNull", addrs, toBigInts(sharesBps), big.NewInt(int64(totalDamage)))
}

// DistributeTournament requests the champion's tier-scaled MON payout (§4.10, §6).
func (c *Client) DistributeTournament(ctx context.Context, tournamentID uint64, winnerWallet string, tier uint8) Distribution {
	return c.transact(ctx, "distributeTournament", new(big.Int).SetUint64(tournamentID), common.HexToAddress(winnerWallet), tier)
}

// Submit runs a distribution call in its own goroutine and logs the
// result — the fire-and-forget pattern mandated by §5/§9. callFn is one
// of the Distribute* bound methods above.
func Submit(ctx context.Context, logTx func(Distribution), callFn func(context.Context) Distribution) {
	go func() {
		d := callFn(ctx)
		if d.Err != nil {
			slog.Error("treasury distribution failed", "method", d.Method, "err", d.Err)
		} else {
			slog.Info("treasury distribution submitted", "method", d.Method, "tx", d.TxHash)
		}
		if logTx != nil {
			logTx(d)
		}
	}()
}
