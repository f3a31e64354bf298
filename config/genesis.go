package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"

	"burnrouter/crypto"
	"burnrouter/native/fees"
	"burnrouter/native/settlement"
)

// Genesis describes the initial world the daemon boots into: the assets and
// their balances, the engine configuration and the seeded partners.
type Genesis struct {
	Owner                      string           `toml:"owner"`
	Admin                      string           `toml:"admin"`
	FeeCollector               string           `toml:"fee_collector"`
	ForwardingTarget           string           `toml:"forwarding_target"`
	SettlementAsset            string           `toml:"settlement_asset"`
	PaymentToken               string           `toml:"payment_token"`
	MaxItemsPerBatch           uint64           `toml:"max_items_per_batch"`
	MinExecutionBudget         uint64           `toml:"min_execution_budget"`
	AcceptSettlementAssetInput bool             `toml:"accept_settlement_asset_input"`
	Fees                       fees.Params      `toml:"fees"`
	Assets                     []GenesisAsset   `toml:"assets"`
	Router                     GenesisRouter    `toml:"router"`
	Partners                   []GenesisPartner `toml:"partners"`
}

// GenesisAsset declares a token by symbol. Its identifier is derived from the
// symbol.
type GenesisAsset struct {
	Symbol      string              `toml:"symbol"`
	Decimals    uint8               `toml:"decimals"`
	Allocations []GenesisAllocation `toml:"allocations"`
}

type GenesisAllocation struct {
	Address string `toml:"address"`
	Amount  string `toml:"amount"`
}

// GenesisRouter configures the fixed-rate conversion venue. Rates are the
// settlement-asset units paid per whole input unit, keyed by symbol.
type GenesisRouter struct {
	Label   string            `toml:"label"`
	Reserve string            `toml:"reserve"`
	Rates   map[string]string `toml:"rates"`
}

type GenesisPartner struct {
	Address string `toml:"address"`
	Share   uint8  `toml:"share"`
}

// ResolvedGenesis is the genesis with every address decoded and every amount
// scaled into smallest units.
type ResolvedGenesis struct {
	Owner    [20]byte
	Admin    [20]byte
	Params   settlement.Params
	Assets   []ResolvedAsset
	Router   ResolvedRouter
	Partners map[[20]byte]uint8
}

type ResolvedAsset struct {
	ID          [20]byte
	Symbol      string
	Decimals    uint8
	Allocations map[[20]byte]*big.Int
}

type ResolvedRouter struct {
	Address [20]byte
	Reserve *big.Int
	// Rates hold settlement-asset smallest units per whole input unit.
	Rates map[[20]byte]*big.Rat
}

// NormalizeSymbol folds a token symbol into its canonical form so that
// visually identical spellings map onto the same asset.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(norm.NFKC.String(strings.TrimSpace(symbol)))
}

// AssetID derives the identifier of the asset with the given symbol.
func AssetID(symbol string) [20]byte {
	return crypto.DeriveAddress("asset/" + NormalizeSymbol(symbol))
}

// DefaultGenesis returns an empty genesis carrying the launch parameters.
func DefaultGenesis() *Genesis {
	defaults := settlement.DefaultParams()
	return &Genesis{
		MaxItemsPerBatch:   defaults.MaxItemsPerBatch,
		MinExecutionBudget: defaults.MinExecutionBudget,
		Fees:               defaults.Fees,
		Router:             GenesisRouter{Label: "burnrouter/router"},
	}
}

// LoadGenesis decodes the TOML genesis at path on top of DefaultGenesis.
func LoadGenesis(path string) (*Genesis, error) {
	genesis := DefaultGenesis()
	if _, err := toml.DecodeFile(path, genesis); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return genesis, nil
}

// ParseGenesis decodes a TOML genesis document.
func ParseGenesis(data []byte) (*Genesis, error) {
	genesis := DefaultGenesis()
	if _, err := toml.Decode(string(data), genesis); err != nil {
		return nil, err
	}
	return genesis, nil
}

// WriteGenesis encodes genesis to path.
func WriteGenesis(path string, genesis *Genesis) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(genesis)
}

// Resolve validates the genesis and converts it into runtime values.
func (g *Genesis) Resolve(engine [20]byte) (*ResolvedGenesis, error) {
	out := &ResolvedGenesis{Partners: make(map[[20]byte]uint8)}
	var err error
	if out.Owner, err = parseRequired("owner", g.Owner); err != nil {
		return nil, err
	}
	if out.Admin, err = crypto.ParseRaw(g.Admin); err != nil {
		return nil, fmt.Errorf("genesis: admin: %w", err)
	}

	decimals := make(map[string]uint8, len(g.Assets))
	for _, asset := range g.Assets {
		symbol := NormalizeSymbol(asset.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("genesis: asset symbol required")
		}
		if _, dup := decimals[symbol]; dup {
			return nil, fmt.Errorf("genesis: duplicate asset %s", symbol)
		}
		decimals[symbol] = asset.Decimals
		resolved := ResolvedAsset{
			ID:          AssetID(symbol),
			Symbol:      symbol,
			Decimals:    asset.Decimals,
			Allocations: make(map[[20]byte]*big.Int, len(asset.Allocations)),
		}
		for _, alloc := range asset.Allocations {
			addr, err := parseRequired("allocation address", alloc.Address)
			if err != nil {
				return nil, err
			}
			amount, err := ParseAmount(alloc.Amount, asset.Decimals)
			if err != nil {
				return nil, fmt.Errorf("genesis: %s allocation: %w", symbol, err)
			}
			if prev, ok := resolved.Allocations[addr]; ok {
				amount.Add(amount, prev)
			}
			resolved.Allocations[addr] = amount
		}
		out.Assets = append(out.Assets, resolved)
	}

	settleSymbol := NormalizeSymbol(g.SettlementAsset)
	settleDecimals, ok := decimals[settleSymbol]
	if !ok {
		return nil, fmt.Errorf("genesis: settlement asset %q is not declared", g.SettlementAsset)
	}

	params := settlement.DefaultParams()
	params.SettlementAsset = AssetID(settleSymbol)
	params.Fees = g.Fees
	params.MaxItemsPerBatch = g.MaxItemsPerBatch
	params.MinExecutionBudget = g.MinExecutionBudget
	params.AcceptSettlementAssetInput = g.AcceptSettlementAssetInput
	if params.FeeCollector, err = parseRequired("fee_collector", g.FeeCollector); err != nil {
		return nil, err
	}
	if params.ForwardingTarget, err = crypto.ParseRaw(g.ForwardingTarget); err != nil {
		return nil, fmt.Errorf("genesis: forwarding_target: %w", err)
	}
	if payment := NormalizeSymbol(g.PaymentToken); payment != "" {
		paymentDecimals, ok := decimals[payment]
		if !ok {
			return nil, fmt.Errorf("genesis: payment token %q is not declared", g.PaymentToken)
		}
		params.PaymentToken = AssetID(payment)
		params.PaymentDecimals = paymentDecimals
	}
	if err := params.Validate(engine); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	out.Params = params

	label := strings.TrimSpace(g.Router.Label)
	if label == "" {
		label = "burnrouter/router"
	}
	out.Router = ResolvedRouter{Address: crypto.DeriveAddress(label), Rates: make(map[[20]byte]*big.Rat)}
	if out.Router.Reserve, err = ParseAmount(g.Router.Reserve, settleDecimals); err != nil {
		return nil, fmt.Errorf("genesis: router reserve: %w", err)
	}
	for symbol, raw := range g.Router.Rates {
		symbol = NormalizeSymbol(symbol)
		inDecimals, ok := decimals[symbol]
		if !ok {
			return nil, fmt.Errorf("genesis: router rate for undeclared asset %q", symbol)
		}
		if symbol == settleSymbol {
			return nil, fmt.Errorf("genesis: router cannot quote the settlement asset")
		}
		rate, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
		if !ok || rate.Sign() <= 0 {
			return nil, fmt.Errorf("genesis: invalid router rate %q for %s", raw, symbol)
		}
		// Convert whole-unit rates into smallest-unit ratios.
		scaled := new(big.Rat).Mul(rate, new(big.Rat).SetFrac(pow10(settleDecimals), pow10(inDecimals)))
		out.Router.Rates[AssetID(symbol)] = scaled
	}

	for _, partner := range g.Partners {
		addr, err := parseRequired("partner address", partner.Address)
		if err != nil {
			return nil, err
		}
		if err := fees.ValidateFeeShare(partner.Share); err != nil {
			return nil, fmt.Errorf("genesis: partner %s: %w", partner.Address, err)
		}
		out.Partners[addr] = partner.Share
	}
	return out, nil
}

func parseRequired(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseRaw(value)
	if err != nil {
		return addr, fmt.Errorf("genesis: %s: %w", field, err)
	}
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("genesis: %s is required", field)
	}
	return addr, nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
