package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// document is the on-disk JSON layout shared with the control surface.
type document struct {
	IsActive     bool    `json:"is_active"`
	MaxCapUSDC   float64 `json:"max_cap_usdc"`
	CopyRatio    float64 `json:"copy_ratio"`
	TargetWallet string  `json:"target_wallet"`
}

// FileStore reads the parameters from a JSON document on every call.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Read parses the document with a fresh viper instance so edits are always picked up.
func (s *FileStore) Read(_ context.Context) (OperatingParameters, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetDefault("is_active", false)
	v.SetDefault("copy_ratio", "0.1")
	v.SetDefault("max_cap_usdc", "500")
	v.SetDefault("target_wallet", "")

	if err := v.ReadInConfig(); err != nil {
		return OperatingParameters{}, fmt.Errorf("read settings %s: %w", s.path, err)
	}

	ratio, err := decimal.NewFromString(v.GetString("copy_ratio"))
	if err != nil {
		return OperatingParameters{}, fmt.Errorf("%w: copy_ratio: %v", ErrInvalid, err)
	}
	maxCap, err := decimal.NewFromString(v.GetString("max_cap_usdc"))
	if err != nil {
		return OperatingParameters{}, fmt.Errorf("%w: max_cap_usdc: %v", ErrInvalid, err)
	}
	target, err := parseTarget(v.GetString("target_wallet"))
	if err != nil {
		return OperatingParameters{}, err
	}

	return OperatingParameters{
		Active:        v.GetBool("is_active"),
		CopyRatio:     ratio,
		MaxCapBase:    maxCap,
		TargetAddress: target,
	}, nil
}

// WriteDefault creates the document with default values unless it already exists.
// It reports whether a file was written.
func (s *FileStore) WriteDefault() (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat settings: %w", err)
	}

	def := Defaults()
	ratio, _ := def.CopyRatio.Float64()
	maxCap, _ := def.MaxCapBase.Float64()
	doc := document{
		IsActive:     def.Active,
		MaxCapUSDC:   maxCap,
		CopyRatio:    ratio,
		TargetWallet: def.TargetAddress.Hex(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return false, fmt.Errorf("write settings: %w", err)
	}
	return true, nil
}

var _ Store = (*FileStore)(nil)
