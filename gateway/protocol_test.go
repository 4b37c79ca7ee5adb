package gateway

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	testPool    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testAsset   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeEVM answers eth_call by selector prefix.
type fakeEVM struct {
	words   map[string]*big.Int
	callErr error

	header    *gethtypes.Header
	headerErr error

	logs    []gethtypes.Log
	sendErr error

	receipt *gethtypes.Receipt
}

func (f *fakeEVM) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeEVM) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(call.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	word, ok := f.words[string(call.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return common.LeftPadBytes(word.Bytes(), 32), nil
}

func (f *fakeEVM) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	return f.logs, nil
}

func (f *fakeEVM) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return f.header, nil
}

func (f *fakeEVM) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	return f.sendErr
}

func (f *fakeEVM) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func ray(ratio float64) *big.Int {
	scaled, _ := new(big.Float).Mul(big.NewFloat(ratio), big.NewFloat(1e18)).Int(nil)
	return scaled
}

func TestFromBps(t *testing.T) {
	if got := FromBps(big.NewInt(250)); got != 0.025 {
		t.Fatalf("FromBps(250) = %v", got)
	}
	if got := FromBps(big.NewInt(10_000)); got != 1 {
		t.Fatalf("FromBps(10000) = %v", got)
	}
	if got := FromBps(nil); got != 0 {
		t.Fatalf("FromBps(nil) = %v", got)
	}
}

func TestTotals(t *testing.T) {
	evm := &fakeEVM{words: map[string]*big.Int{
		string(selTotalDeposits): big.NewInt(1_000_000),
		string(selTotalBorrows):  big.NewInt(400_000),
	}}
	c := New(evm, testPool)
	totals, err := c.Totals(context.Background(), testAsset)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Deposits.Int64() != 1_000_000 || totals.Borrows.Int64() != 400_000 {
		t.Fatalf("totals = %+v", totals)
	}
}

func TestPosition(t *testing.T) {
	evm := &fakeEVM{words: map[string]*big.Int{
		string(selAccountDeposit): big.NewInt(100),
		string(selAccountBorrow):  big.NewInt(40),
		string(selAccountCollat):  big.NewInt(60),
		string(selAccruedIn):      big.NewInt(2),
	}}
	c := New(evm, testPool)
	position, err := c.Position(context.Background(), testAccount, testAsset)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Deposited.Int64() != 100 || position.Borrowed.Int64() != 40 ||
		position.Collateral.Int64() != 60 || position.Accrued.Int64() != 2 {
		t.Fatalf("position = %+v", position)
	}
}

func TestHealthRatioNormalizesRay(t *testing.T) {
	evm := &fakeEVM{words: map[string]*big.Int{
		string(selHealthRatio): ray(1.5),
	}}
	c := New(evm, testPool)
	ratio, err := c.HealthRatio(context.Background(), testAccount, testAsset)
	if err != nil {
		t.Fatalf("health ratio: %v", err)
	}
	if ratio != 1.5 {
		t.Fatalf("ratio = %v, want 1.5", ratio)
	}
}

func TestRateReadsConvertOnce(t *testing.T) {
	evm := &fakeEVM{words: map[string]*big.Int{
		string(selSupplyRateBps):    big.NewInt(250),
		string(selBorrowRateBps):    big.NewInt(475),
		string(selCollateralFactor): big.NewInt(8_000),
	}}
	c := New(evm, testPool)

	supply, err := c.SupplyRate(context.Background(), testAsset)
	if err != nil || supply != 0.025 {
		t.Fatalf("SupplyRate = %v, %v", supply, err)
	}
	borrow, err := c.BorrowRate(context.Background(), testAsset)
	if err != nil || borrow != 0.0475 {
		t.Fatalf("BorrowRate = %v, %v", borrow, err)
	}
	factor, err := c.CollateralFactor(context.Background(), testAsset)
	if err != nil || factor != 0.8 {
		t.Fatalf("CollateralFactor = %v, %v", factor, err)
	}
}

func TestReadErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ReadKind
	}{
		{"timeout", context.DeadlineExceeded, ReadTimeout},
		{"not found", ethereum.NotFound, ReadNotFound},
		{"reverted", errors.New("execution reverted: no market"), ReadReverted},
		{"transport", errors.New("connection refused"), ReadUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(&fakeEVM{callErr: tc.err}, testPool)
			_, err := c.Totals(context.Background(), testAsset)
			readErr, ok := AsReadError(err)
			if !ok {
				t.Fatalf("expected ReadError, got %v", err)
			}
			if readErr.Kind != tc.want {
				t.Fatalf("Kind = %v, want %v", readErr.Kind, tc.want)
			}
			if readErr.Op != "totals" {
				t.Fatalf("Op = %q", readErr.Op)
			}
			if !errors.Is(err, tc.err) {
				t.Fatal("cause not preserved in chain")
			}
		})
	}
}

func TestMissingContractIsReadError(t *testing.T) {
	// The fake reverts for unknown selectors, mirroring a call against a
	// contract without the view.
	c := New(&fakeEVM{words: map[string]*big.Int{}}, testPool)
	_, err := c.HealthRatio(context.Background(), testAccount, testAsset)
	readErr, ok := AsReadError(err)
	if !ok || readErr.Kind != ReadReverted {
		t.Fatalf("expected reverted ReadError, got %v", err)
	}
}

func TestHeadBlock(t *testing.T) {
	evm := &fakeEVM{header: &gethtypes.Header{Number: big.NewInt(123)}}
	c := New(evm, testPool)
	head, err := c.HeadBlock(context.Background())
	if err != nil || head != 123 {
		t.Fatalf("HeadBlock = %d, %v", head, err)
	}
}

func TestBlockTimestamp(t *testing.T) {
	evm := &fakeEVM{header: &gethtypes.Header{Number: big.NewInt(9), Time: 1_700_000_000}}
	c := New(evm, testPool)
	ts, err := c.BlockTimestamp(context.Background(), 9)
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if ts.Unix() != 1_700_000_000 {
		t.Fatalf("ts = %v", ts)
	}

	c = New(&fakeEVM{}, testPool)
	_, err = c.BlockTimestamp(context.Background(), 9)
	readErr, ok := AsReadError(err)
	if !ok || readErr.Kind != ReadNotFound {
		t.Fatalf("missing header should be not_found, got %v", err)
	}
}

func TestSubmitReturnsTxHash(t *testing.T) {
	c := New(&fakeEVM{}, testPool)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1), To: &testPool})
	hash, err := c.Submit(context.Background(), tx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != tx.Hash() {
		t.Fatalf("hash mismatch: %v vs %v", hash, tx.Hash())
	}
	if _, err := c.Submit(context.Background(), nil); err == nil {
		t.Fatal("nil transaction must be rejected")
	}
}

func TestSelectorsAreFourBytes(t *testing.T) {
	sels := [][]byte{
		selTotalDeposits, selTotalBorrows, selAccountDeposit, selAccountBorrow,
		selAccountCollat, selAccruedIn, selHealthRatio, selCollateralFactor,
		selSupplyRateBps, selBorrowRateBps,
	}
	for i, sel := range sels {
		if len(sel) != 4 {
			t.Fatalf("selector %d has length %d", i, len(sel))
		}
		for j := 0; j < i; j++ {
			if bytes.Equal(sel, sels[j]) {
				t.Fatalf("selectors %d and %d collide", i, j)
			}
		}
	}
}
