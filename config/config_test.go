package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"burnrouter/crypto"
	"burnrouter/native/fees"
)

var (
	testEngine    = crypto.DeriveAddress("test/engine")
	testOwner     = crypto.DeriveAddress("test/owner")
	testCollector = crypto.DeriveAddress("test/collector")
	testUser      = crypto.DeriveAddress("test/user")
)

func bech32(addr [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EngineLabel != DefaultEngineLabel || cfg.DataDir == "" || cfg.StorageBackend != BackendLevelDB {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(cfg.OwnerKeystorePath); err != nil {
		t.Fatalf("owner keystore not created: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, ""); err != nil {
		t.Fatalf("keystore unreadable: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OwnerKeystorePath != cfg.OwnerKeystorePath || again.EngineAddress() != cfg.EngineAddress() {
		t.Fatalf("reload changed config: %+v vs %+v", again, cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \"./x\"\nValidatorKey = \"abc\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadStorageBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystore := filepath.Join(dir, "owner.keystore")
	body := "StorageBackend = \"Bolt\"\nOwnerKeystorePath = \"" + filepath.ToSlash(keystore) + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendBolt {
		t.Fatalf("expected bolt backend, got %q", cfg.StorageBackend)
	}

	if err := os.WriteFile(path, []byte("StorageBackend = \"rocks\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported storage backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
		ok       bool
	}{
		{"1", 18, "1000000000000000000", true},
		{"0.025", 18, "25000000000000000", true},
		{"25", 6, "25000000", true},
		{"", 6, "0", true},
		{"0.0000001", 6, "", false},
		{"-1", 6, "", false},
		{"abc", 6, "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.decimals)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseAmount(%q): unexpected error state %v", tc.in, err)
		}
		if tc.ok && got.String() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(big.NewInt(975_000), 6); got != "0.975" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatAmount(big.NewInt(5_000_000), 6); got != "5" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatAmount(big.NewInt(-1_500), 3); got != "-1.5" {
		t.Fatalf("unexpected format %q", got)
	}
}

func genesisDoc() string {
	return `owner = "` + bech32(testOwner) + `"
fee_collector = "` + bech32(testCollector) + `"
settlement_asset = "wnative"
payment_token = "USDC"
accept_settlement_asset_input = true

[fees]
burn_fee_divisor = 50
referrer_fee_share = 5

[[assets]]
symbol = "WNATIVE"
decimals = 18

[[assets]]
symbol = "USDC"
decimals = 6
[[assets.allocations]]
address = "` + bech32(testUser) + `"
amount = "100.5"

[router]
reserve = "1000"
[router.rates]
USDC = "0.5"

[[partners]]
address = "` + bech32(testUser) + `"
share = 10
`
}

func TestGenesisResolve(t *testing.T) {
	genesis, err := ParseGenesis([]byte(genesisDoc()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resolved, err := genesis.Resolve(testEngine)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := fees.Params{BurnFeeDivisor: 50, NativeSentFeeDivisor: 400, ReferrerFeeShare: 5}
	if resolved.Params.Fees != want {
		t.Fatalf("unexpected fees: %+v", resolved.Params.Fees)
	}
	if resolved.Params.MaxItemsPerBatch != 50 || resolved.Params.MinExecutionBudget != 100_000 {
		t.Fatalf("defaults lost: %+v", resolved.Params)
	}
	if resolved.Params.SettlementAsset != AssetID("WNATIVE") || resolved.Params.PaymentToken != AssetID("usdc") {
		t.Fatalf("asset ids not derived from symbols")
	}
	if resolved.Params.PaymentDecimals != 6 || !resolved.Params.AcceptSettlementAssetInput {
		t.Fatalf("unexpected params: %+v", resolved.Params)
	}
	if resolved.Owner != testOwner || resolved.Params.FeeCollector != testCollector {
		t.Fatalf("addresses not decoded")
	}
	usdc := resolved.Assets[1]
	if usdc.Allocations[testUser].Cmp(big.NewInt(100_500_000)) != 0 {
		t.Fatalf("unexpected allocation: %s", usdc.Allocations[testUser])
	}
	// 0.5 WNATIVE per USDC: 1e6 smallest USDC units buy 5e17 wei.
	rate := resolved.Router.Rates[AssetID("USDC")]
	if rate == nil || rate.Cmp(new(big.Rat).SetInt64(500_000_000_000)) != 0 {
		t.Fatalf("unexpected rate: %v", rate)
	}
	if resolved.Partners[testUser] != 10 {
		t.Fatalf("partner not resolved: %v", resolved.Partners)
	}
}

func TestGenesisResolveRejects(t *testing.T) {
	cases := map[string]string{
		"missing owner":        strings.Replace(genesisDoc(), `owner = "`+bech32(testOwner)+`"`, "", 1),
		"undeclared asset":     strings.Replace(genesisDoc(), `settlement_asset = "wnative"`, `settlement_asset = "DAI"`, 1),
		"low divisor":          strings.Replace(genesisDoc(), "burn_fee_divisor = 50", "burn_fee_divisor = 10", 1),
		"bad partner share":    strings.Replace(genesisDoc(), "share = 10", "share = 30", 1),
		"settlement rate":      strings.Replace(genesisDoc(), `USDC = "0.5"`, `WNATIVE = "1"`, 1),
		"collector is engine":  strings.Replace(genesisDoc(), bech32(testCollector), bech32(testEngine), 1),
		"excess allocation dp": strings.Replace(genesisDoc(), `"100.5"`, `"0.0000001"`, 1),
	}
	for name, doc := range cases {
		genesis, err := ParseGenesis([]byte(doc))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if _, err := genesis.Resolve(testEngine); err == nil {
			t.Fatalf("%s: expected resolve error", name)
		}
	}
}

func TestGenesisRoundTripFile(t *testing.T) {
	genesis, err := ParseGenesis([]byte(genesisDoc()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.toml")
	if err := WriteGenesis(path, genesis); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Fees != genesis.Fees || len(loaded.Assets) != 2 || loaded.Router.Rates["USDC"] != "0.5" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		" usdc ":  "USDC",
		"ＵＳＤＣ":    "USDC",
		"wNative": "WNATIVE",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
	if AssetID("ｕｓｄｃ") != AssetID("USDC") {
		t.Fatalf("fullwidth symbol derived a different asset id")
	}
}
