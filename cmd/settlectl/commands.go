package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"burnrouter/cmd/internal/passphrase"
	"burnrouter/config"
	"burnrouter/crypto"
	"burnrouter/native/fees"
	"burnrouter/services/settled/server"
)

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "account.keystore", "keystore file to create")
	passEnv := fs.String("pass-env", "SETTLECTL_PASSPHRASE", "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("keystore %s already exists (use --force to overwrite)", *path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, passphrase.WithConfirmation()).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr, err := crypto.SaveToKeystore(*path, key, pass)
	if err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "address:  %s\nkeystore: %s\n", addr, *path)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	label := fs.String("label", "", "derive the module account for this label")
	asset := fs.String("asset", "", "derive the identifier of the asset with this symbol")
	convert := fs.String("convert", "", "render a hex or bech32 address in every encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var raw [20]byte
	switch {
	case *label != "":
		raw = crypto.DeriveAddress(*label)
	case *asset != "":
		raw = config.AssetID(*asset)
	case *convert != "":
		parsed, err := crypto.ParseRaw(*convert)
		if err != nil {
			return err
		}
		raw = parsed
	default:
		return errors.New("one of --label, --asset or --convert is required")
	}
	fmt.Fprintf(out, "account: %s\nasset:   %s\nhex:     0x%x\n",
		crypto.FromRaw(crypto.AccountPrefix, raw),
		crypto.FromRaw(crypto.AssetPrefix, raw),
		raw[:],
	)
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "account the token acts for (bech32 or hex)")
	secretEnv := fs.String("secret-env", "SETTLED_JWT_SECRET", "environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "", "issuer claim")
	audience := fs.String("audience", "", "audience claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.ParseRaw(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if addr == ([20]byte{}) {
		return errors.New("--subject is required")
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	token, err := server.IssueToken(server.AuthConfig{
		HMACSecret: secret,
		Issuer:     *issuer,
		Audience:   *audience,
	}, crypto.FromRaw(crypto.AccountPrefix, addr).String(), *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runGenesis(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("genesis", flag.ContinueOnError)
	path := fs.String("out", "genesis.toml", "file to write")
	owner := fs.String("owner", "", "owner account; left empty to use the daemon's owner keystore")
	collector := fs.String("fee-collector", "", "fee collector account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	g := config.DefaultGenesis()
	g.Owner = *owner
	g.FeeCollector = *collector
	g.SettlementAsset = "WNATIVE"
	g.PaymentToken = "USDC"
	g.Assets = []config.GenesisAsset{
		{Symbol: "WNATIVE", Decimals: 18},
		{Symbol: "USDC", Decimals: 6},
	}
	g.Router.Reserve = "1000000"
	g.Router.Rates = map[string]string{"USDC": "0.5"}
	if err := config.WriteGenesis(*path, g); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", *path)
	return nil
}

func runFees(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fees", flag.ContinueOnError)
	defaults := fees.DefaultParams()
	proceeds := fs.String("proceeds", "0", "swap proceeds in whole settlement-asset units")
	value := fs.String("value", "0", "directly supplied value in whole units")
	decimals := fs.Uint8("decimals", 18, "settlement asset decimals")
	share := fs.Uint8("share", 0, "referral share out of 20 (0 means no referrer)")
	burn := fs.Uint64("burn-divisor", defaults.BurnFeeDivisor, "fee divisor applied to swap proceeds")
	native := fs.Uint64("native-divisor", defaults.NativeSentFeeDivisor, "fee divisor applied to direct value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	swap, err := config.ParseAmount(*proceeds, *decimals)
	if err != nil {
		return fmt.Errorf("proceeds: %w", err)
	}
	direct, err := config.ParseAmount(*value, *decimals)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	params := fees.Params{BurnFeeDivisor: *burn, NativeSentFeeDivisor: *native, ReferrerFeeShare: defaults.ReferrerFeeShare}
	breakdown, err := fees.Compute(fees.Input{SwapProceeds: swap, DirectValue: direct, Params: params, Share: *share})
	if err != nil {
		return err
	}
	rows := []struct {
		label string
		v     string
	}{
		{"gross", config.FormatAmount(breakdown.Gross, *decimals)},
		{"swap fee", config.FormatAmount(breakdown.SwapFee, *decimals)},
		{"direct fee", config.FormatAmount(breakdown.DirectFee, *decimals)},
		{"fee", config.FormatAmount(breakdown.Fee, *decimals)},
		{"net", config.FormatAmount(breakdown.Net, *decimals)},
		{"referrer", config.FormatAmount(breakdown.ReferrerCut, *decimals)},
		{"collector", config.FormatAmount(breakdown.CollectorCut, *decimals)},
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%-10s %s\n", row.label, row.v)
	}
	return nil
}
