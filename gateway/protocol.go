package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Lending pool view selectors. The pool exposes pool-wide totals per asset
// market plus per-account positions; rates and the health ratio are computed
// on-chain and only read here.
var (
	selTotalDeposits    = selector("totalDeposits(address)")
	selTotalBorrows     = selector("totalBorrows(address)")
	selAccountDeposit   = selector("accountDeposit(address,address)")
	selAccountBorrow    = selector("accountBorrow(address,address)")
	selAccountCollat    = selector("accountCollateral(address,address)")
	selAccruedIn        = selector("accruedInterest(address,address)")
	selHealthRatio      = selector("healthRatio(address,address)")
	selCollateralFactor = selector("collateralFactor(address)")
	selSupplyRateBps    = selector("supplyRateBps(address)")
	selBorrowRateBps    = selector("borrowRateBps(address)")
)

// bpsDivisor is the ledger's fixed-point scale for rate and factor views.
// All modules of the pool quote basis points out of 10_000; conversion to a
// unit fraction happens exactly once, here.
var bpsDivisor = big.NewFloat(10_000)

// rayDivisor is the ledger's 1e18 fixed-point scale for the health ratio.
var rayDivisor = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// PoolTotals is one asset market's pool-wide state.
type PoolTotals struct {
	Deposits *big.Int
	Borrows  *big.Int
}

// AccountPosition is one account's raw position in one asset market.
type AccountPosition struct {
	Deposited  *big.Int
	Borrowed   *big.Int
	Collateral *big.Int
	Accrued    *big.Int
}

// Totals reads the pool-wide deposit and borrow magnitudes for an asset.
func (c *Client) Totals(ctx context.Context, asset common.Address) (PoolTotals, error) {
	totals := PoolTotals{}
	err := c.read(ctx, "totals", func(ctx context.Context) error {
		deposits, inner := c.callWord(ctx, selTotalDeposits, asset.Bytes())
		if inner != nil {
			return inner
		}
		borrows, inner := c.callWord(ctx, selTotalBorrows, asset.Bytes())
		if inner != nil {
			return inner
		}
		totals.Deposits = deposits
		totals.Borrows = borrows
		return nil
	})
	if err != nil {
		return PoolTotals{}, err
	}
	return totals, nil
}

// Position reads one account's raw position in an asset market.
func (c *Client) Position(ctx context.Context, account, asset common.Address) (AccountPosition, error) {
	position := AccountPosition{}
	err := c.read(ctx, "position", func(ctx context.Context) error {
		var inner error
		if position.Deposited, inner = c.callWord(ctx, selAccountDeposit, account.Bytes(), asset.Bytes()); inner != nil {
			return inner
		}
		if position.Borrowed, inner = c.callWord(ctx, selAccountBorrow, account.Bytes(), asset.Bytes()); inner != nil {
			return inner
		}
		if position.Collateral, inner = c.callWord(ctx, selAccountCollat, account.Bytes(), asset.Bytes()); inner != nil {
			return inner
		}
		if position.Accrued, inner = c.callWord(ctx, selAccruedIn, account.Bytes(), asset.Bytes()); inner != nil {
			return inner
		}
		return nil
	})
	if err != nil {
		return AccountPosition{}, err
	}
	return position, nil
}

// HealthRatio reads the account's ledger-computed health ratio for an asset
// market, normalized from the on-chain 1e18 fixed point.
func (c *Client) HealthRatio(ctx context.Context, account, asset common.Address) (float64, error) {
	var ratio float64
	err := c.read(ctx, "health_ratio", func(ctx context.Context) error {
		word, inner := c.callWord(ctx, selHealthRatio, account.Bytes(), asset.Bytes())
		if inner != nil {
			return inner
		}
		value, _ := new(big.Float).Quo(new(big.Float).SetInt(word), rayDivisor).Float64()
		ratio = value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ratio, nil
}

// CollateralFactor reads the asset market's collateral factor as a unit
// fraction.
func (c *Client) CollateralFactor(ctx context.Context, asset common.Address) (float64, error) {
	return c.readBps(ctx, "collateral_factor", selCollateralFactor, asset)
}

// SupplyRate reads the asset market's current supply rate as a unit
// fraction per year.
func (c *Client) SupplyRate(ctx context.Context, asset common.Address) (float64, error) {
	return c.readBps(ctx, "supply_rate", selSupplyRateBps, asset)
}

// BorrowRate reads the asset market's current borrow rate as a unit
// fraction per year.
func (c *Client) BorrowRate(ctx context.Context, asset common.Address) (float64, error) {
	return c.readBps(ctx, "borrow_rate", selBorrowRateBps, asset)
}

func (c *Client) readBps(ctx context.Context, op string, sel []byte, asset common.Address) (float64, error) {
	var out float64
	err := c.read(ctx, op, func(ctx context.Context) error {
		word, inner := c.callWord(ctx, sel, asset.Bytes())
		if inner != nil {
			return inner
		}
		out = FromBps(word)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

// FromBps converts a ledger basis-points word to a unit fraction. Every
// rate or factor crossing the gateway passes through here and nowhere else.
func FromBps(word *big.Int) float64 {
	if word == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(word), bpsDivisor).Float64()
	return out
}

// callWord performs an eth_call against the pool and decodes a single
// 32-byte return word.
func (c *Client) callWord(ctx context.Context, sel []byte, args ...[]byte) (*big.Int, error) {
	if c == nil || c.evm == nil {
		return nil, errNotConfigured
	}
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, sel...)
	for _, arg := range args {
		data = append(data, common.LeftPadBytes(arg, 32)...)
	}
	out, err := c.evm.CallContract(ctx, ethereum.CallMsg{To: &c.pool, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short call return: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func selector(signature string) []byte {
	return gethcrypto.Keccak256([]byte(signature))[:4]
}
