package contracts

import (
	"encoding/json"
	"sort"
	"strings"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownContract is returned when a populated cache lacks the name.
	ErrUnknownContract = xerrors.New(xerrors.CodeUnknownContract, "合约不在本地编译缓存中")
	// ErrCacheEmpty is returned when no compilation was ever performed.
	ErrCacheEmpty = xerrors.New(xerrors.CodeCacheEmpty, "本地合约编译缓存为空")
)

// RawArtifact is the compiler output for one contract.
type RawArtifact struct {
	ABI json.RawMessage `json:"abi"`
	Bin string          `json:"bin"`
}

// Compiler produces artifacts keyed by contract name.
type Compiler interface {
	Compile() (map[string]RawArtifact, error)
}

// Artifact is a decoded, deployable contract.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	RawABI   string
	Bytecode []byte
}

// CacheState tells whether a compilation populated the cache.
type CacheState int

const (
	CacheUncompiled CacheState = iota
	CacheCached
)

func (s CacheState) String() string {
	if s == CacheCached {
		return "cached"
	}
	return "uncompiled"
}

// Cache is a write-once store of compiled artifacts.
type Cache struct {
	state     CacheState
	artifacts map[string]Artifact
}

// NewCache compiles once with compiler. A nil compiler yields an Uncompiled
// cache.
func NewCache(compiler Compiler) (*Cache, error) {
	if compiler == nil {
		return &Cache{state: CacheUncompiled}, nil
	}
	raw, err := compiler.Compile()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "编译合约失败")
	}
	artifacts := make(map[string]Artifact, len(raw))
	for name, art := range raw {
		decoded, err := decodeArtifact(name, art)
		if err != nil {
			return nil, err
		}
		artifacts[name] = decoded
	}
	return &Cache{state: CacheCached, artifacts: artifacts}, nil
}

func decodeArtifact(name string, raw RawArtifact) (Artifact, error) {
	rawABI := strings.TrimSpace(string(raw.ABI))
	if rawABI == "" {
		rawABI = "[]"
	}
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return Artifact{}, xerrors.Wrapf(xerrors.CodeConfiguration, err, "解析合约 %s 的 ABI 失败", name)
	}
	return Artifact{
		Name:     name,
		ABI:      parsed,
		RawABI:   rawABI,
		Bytecode: common.FromHex(strings.TrimSpace(raw.Bin)),
	}, nil
}

// State returns the cache state.
func (c *Cache) State() CacheState {
	if c == nil {
		return CacheUncompiled
	}
	return c.state
}

// Factory returns the artifact compiled for name.
func (c *Cache) Factory(name string) (Artifact, error) {
	if c.State() == CacheUncompiled {
		return Artifact{}, xerrors.Wrap(xerrors.CodeCacheEmpty, ErrCacheEmpty, "没有执行过编译")
	}
	art, ok := c.artifacts[name]
	if !ok {
		return Artifact{}, xerrors.Wrapf(xerrors.CodeUnknownContract, ErrUnknownContract, "%s 不是本地编译的合约", name)
	}
	return art, nil
}

// Names lists the cached contract names.
func (c *Cache) Names() []string {
	if c.State() == CacheUncompiled {
		return nil
	}
	names := make([]string, 0, len(c.artifacts))
	for name := range c.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
