package registry

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownAsset is returned when a lookup misses the catalog.
	ErrUnknownAsset = errors.New("registry: unknown asset")

	errEmptyCatalog = errors.New("registry: catalog is empty")
)

// Asset describes one supported asset. Instances are immutable after Load.
type Asset struct {
	ID          string `toml:"id"`
	Symbol      string `toml:"symbol"`
	DisplayName string `toml:"display_name"`
	Address     string `toml:"address"`
	Decimals    uint8  `toml:"decimals"`
	Native      bool   `toml:"native"`
	// MinAmount and MaxAmount bound user-submitted amounts in normalized
	// units. Zero means unbounded.
	MinAmount float64 `toml:"min_amount"`
	MaxAmount float64 `toml:"max_amount"`
}

// ContractAddress returns the asset's on-ledger address.
func (a Asset) ContractAddress() common.Address {
	return common.HexToAddress(a.Address)
}

// Registry is the static asset catalog, loaded once at startup and never
// mutated afterwards.
type Registry struct {
	assets   []Asset
	byID     map[string]int
	bySymbol map[string]int
}

type catalogFile struct {
	Assets []Asset `toml:"asset"`
}

// Load reads a TOML catalog from disk and validates it.
func Load(path string) (*Registry, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("registry: decode catalog: %w", err)
	}
	return New(file.Assets)
}

// New builds a registry from an in-memory asset list.
func New(assets []Asset) (*Registry, error) {
	if len(assets) == 0 {
		return nil, errEmptyCatalog
	}
	reg := &Registry{
		assets:   make([]Asset, 0, len(assets)),
		byID:     make(map[string]int, len(assets)),
		bySymbol: make(map[string]int, len(assets)),
	}
	for _, asset := range assets {
		id := strings.TrimSpace(asset.ID)
		symbol := strings.TrimSpace(asset.Symbol)
		if id == "" || symbol == "" {
			return nil, fmt.Errorf("registry: asset missing id or symbol: %+v", asset)
		}
		if _, dup := reg.byID[id]; dup {
			return nil, fmt.Errorf("registry: duplicate asset id %q", id)
		}
		if !asset.Native && strings.TrimSpace(asset.Address) == "" {
			return nil, fmt.Errorf("registry: issued asset %q missing address", id)
		}
		asset.ID = id
		asset.Symbol = symbol
		reg.byID[id] = len(reg.assets)
		reg.bySymbol[strings.ToUpper(symbol)] = len(reg.assets)
		reg.assets = append(reg.assets, asset)
	}
	return reg, nil
}

// Assets returns the catalog in declaration order.
func (r *Registry) Assets() []Asset {
	if r == nil {
		return nil
	}
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// ByID looks up an asset by identifier.
func (r *Registry) ByID(id string) (Asset, error) {
	if r == nil {
		return Asset{}, ErrUnknownAsset
	}
	idx, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, id)
	}
	return r.assets[idx], nil
}

// BySymbol looks up an asset by symbol, case-insensitively.
func (r *Registry) BySymbol(symbol string) (Asset, error) {
	if r == nil {
		return Asset{}, ErrUnknownAsset
	}
	idx, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, fmt.Errorf("%w: symbol %q", ErrUnknownAsset, symbol)
	}
	return r.assets[idx], nil
}

// MustAsset looks up an asset by id and panics when it is absent. A missing
// catalog entry for a referenced id is a programming error, not a runtime
// condition.
func (r *Registry) MustAsset(id string) Asset {
	asset, err := r.ByID(id)
	if err != nil {
		panic(err)
	}
	return asset
}

// Normalize converts a raw integer magnitude into the asset's decimal units.
func (r *Registry) Normalize(asset Asset, raw *big.Int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(pow10(asset.Decimals))
	value := new(big.Float).SetInt(raw)
	out, _ := new(big.Float).Quo(value, scale).Float64()
	return out
}

// Denormalize converts a decimal amount back into the raw integer magnitude
// expected at the ledger boundary. Fractions below one raw unit truncate.
func (r *Registry) Denormalize(asset Asset, amount float64) *big.Int {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return big.NewInt(0)
	}
	value := new(big.Float).SetFloat64(amount)
	value.Mul(value, new(big.Float).SetInt(pow10(asset.Decimals)))
	out, _ := value.Int(nil)
	return out
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
