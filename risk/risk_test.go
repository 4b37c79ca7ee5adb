package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		ratio float64
		want  Status
	}{
		{"well collateralized", 2.0, Safe},
		{"exact safe boundary", 1.5, Safe},
		{"just under safe", 1.499999, Warning},
		{"exact danger boundary", 1.2, Warning},
		{"just under danger", 1.199999, Danger},
		{"deeply underwater", 0.4, Danger},
		{"zero ratio", 0, Danger},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.ratio); got != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.ratio, got, tc.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if Safe.String() != "safe" || Warning.String() != "warning" || Danger.String() != "danger" {
		t.Fatal("status strings changed")
	}
	text, err := Danger.MarshalText()
	if err != nil || string(text) != "danger" {
		t.Fatalf("MarshalText = %q, %v", text, err)
	}
}

type scanItem struct {
	id    string
	ratio float64
}

func TestScanPreservesOrder(t *testing.T) {
	items := []scanItem{
		{"a", 0.9},
		{"b", 1.6},
		{"c", 1.1},
		{"d", 1.2},
	}
	got := Scan(items, func(i scanItem) float64 { return i.ratio })
	if len(got) != 2 || got[0].id != "a" || got[1].id != "c" {
		t.Fatalf("Scan returned %v", got)
	}
}

func TestScanEmpty(t *testing.T) {
	got := Scan([]scanItem{{"a", 2.0}}, func(i scanItem) float64 { return i.ratio })
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
	if got := Scan(nil, func(i scanItem) float64 { return i.ratio }); len(got) != 0 {
		t.Fatalf("nil input should scan to empty, got %v", got)
	}
}

type stubHealthSource struct {
	ratio float64
	err   error
}

func (s stubHealthSource) HealthRatio(ctx context.Context, account, asset common.Address) (float64, error) {
	return s.ratio, s.err
}

func TestEngineClassifyAccount(t *testing.T) {
	engine := NewEngine(stubHealthSource{ratio: 1.3})
	status, ratio, err := engine.ClassifyAccount(context.Background(), common.Address{}, common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if status != Warning || ratio != 1.3 {
		t.Fatalf("got %v %v", status, ratio)
	}
}

func TestEnginePropagatesSourceFailure(t *testing.T) {
	boom := errors.New("rpc down")
	engine := NewEngine(stubHealthSource{err: boom})
	if _, _, err := engine.ClassifyAccount(context.Background(), common.Address{}, common.Address{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestNilEngine(t *testing.T) {
	var engine *Engine
	if _, err := engine.HealthRatio(context.Background(), common.Address{}, common.Address{}); err == nil {
		t.Fatal("nil engine must error, not panic")
	}
}
