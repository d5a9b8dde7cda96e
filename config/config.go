package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"assetpool/core/types"
	"assetpool/crypto"
)

// Params are the protocol parameters shared by the daemon and the CLI.
type Params struct {
	AssetA      string `toml:"AssetA"`
	AssetB      string `toml:"AssetB"`
	PeggedAsset string `toml:"PeggedAsset"`

	FeeBps                uint64 `toml:"FeeBps"`
	DefaultMaxSlippageBps uint64 `toml:"DefaultMaxSlippageBps"`

	CollateralRatioPct  uint64 `toml:"CollateralRatioPct"`
	PegSupplyCap        uint64 `toml:"PegSupplyCap"`
	DefaultLoanDuration uint64 `toml:"DefaultLoanDurationMs"`
	DefaultLoanRateBps  uint64 `toml:"DefaultLoanRateBps"`

	Admin    string `toml:"Admin"`
	Feeder   string `toml:"Feeder"`
	Treasury string `toml:"Treasury"`

	FeederKeystorePath string `toml:"FeederKeystorePath"`
	FeederKeystoreEnv  string `toml:"FeederKeystorePassphraseEnv,omitempty"`
}

// Resolved holds the decoded addresses and assets of a Params file.
type Resolved struct {
	AssetA      types.Asset
	AssetB      types.Asset
	PeggedAsset types.Asset
	Admin       crypto.Address
	Feeder      crypto.Address
	Treasury    crypto.Address
}

// Load loads the parameters from the given path, creating a default file with
// a freshly generated operator key when none exists.
func Load(path string) (*Params, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	params := &Params{}
	meta, err := toml.DecodeFile(path, params)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("params %s: unknown keys %v", path, undecoded)
	}
	params.applyDefaults()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("params %s: %w", path, err)
	}
	return params, nil
}

// Passphrase returns the feeder keystore passphrase from the configured
// environment variable.
func (p *Params) Passphrase() string {
	if p == nil || strings.TrimSpace(p.FeederKeystoreEnv) == "" {
		return ""
	}
	return os.Getenv(strings.TrimSpace(p.FeederKeystoreEnv))
}

func (p *Params) applyDefaults() {
	if strings.TrimSpace(p.AssetA) == "" {
		p.AssetA = "SOIL"
	}
	if strings.TrimSpace(p.AssetB) == "" {
		p.AssetB = "H2O"
	}
	if strings.TrimSpace(p.PeggedAsset) == "" {
		p.PeggedAsset = "PUSD"
	}
	if p.DefaultMaxSlippageBps == 0 {
		p.DefaultMaxSlippageBps = 100
	}
	if p.CollateralRatioPct == 0 {
		p.CollateralRatioPct = 150
	}
	if p.DefaultLoanDuration == 0 {
		p.DefaultLoanDuration = 30 * 24 * 3_600_000
	}
	if strings.TrimSpace(p.Treasury) == "" {
		p.Treasury = crypto.ModuleAddress("treasury").String()
	}
}

// createDefault writes a default parameter file. The generated operator key
// acts as both admin and feeder.
func createDefault(path string) (*Params, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", false); err != nil {
		return nil, err
	}
	operator := key.PubKey().Address().String()
	params := &Params{
		FeeBps:             30,
		Admin:              operator,
		Feeder:             operator,
		FeederKeystorePath: keystorePath,
	}
	params.applyDefaults()
	if err := persist(path, params); err != nil {
		return nil, err
	}
	return params, nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "feeder.keystore")
}

func persist(path string, params *Params) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(params)
}
