package contracts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StaticCompiler serves artifacts that were produced elsewhere.
type StaticCompiler map[string]RawArtifact

// Compile returns a copy of the artifacts.
func (s StaticCompiler) Compile() (map[string]RawArtifact, error) {
	out := make(map[string]RawArtifact, len(s))
	for name, art := range s {
		out[name] = art
	}
	return out, nil
}

// CombinedJSON reads the output of `solc --combined-json abi,bin` from one or
// more files. Contracts are keyed by their bare name; the same name in two
// source units is rejected.
type CombinedJSON struct {
	Paths []string
}

type combinedOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
}

// Compile parses every configured file.
func (c CombinedJSON) Compile() (map[string]RawArtifact, error) {
	out := make(map[string]RawArtifact)
	origin := make(map[string]string)
	for _, path := range c.Paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取编译产物 %s 失败: %w", path, err)
		}
		parsed, err := ParseCombinedJSON(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for name, art := range parsed {
			if prev, ok := origin[name]; ok {
				return nil, fmt.Errorf("合约 %s 同时出现在 %s 与 %s", name, prev, path)
			}
			origin[name] = path
			out[name] = art
		}
	}
	return out, nil
}

// ParseCombinedJSON decodes solc combined-json output. Older solc releases
// emit the ABI as a JSON string rather than an array; both are accepted.
func ParseCombinedJSON(content []byte) (map[string]RawArtifact, error) {
	var output combinedOutput
	if err := json.Unmarshal(content, &output); err != nil {
		return nil, fmt.Errorf("解析 combined-json 失败: %w", err)
	}
	out := make(map[string]RawArtifact, len(output.Contracts))
	for key, contract := range output.Contracts {
		name := key
		if idx := strings.LastIndex(key, ":"); idx >= 0 {
			name = key[idx+1:]
		}
		abiJSON := contract.ABI
		if len(abiJSON) > 0 && abiJSON[0] == '"' {
			var encoded string
			if err := json.Unmarshal(abiJSON, &encoded); err != nil {
				return nil, fmt.Errorf("解析合约 %s 的 ABI 字符串失败: %w", name, err)
			}
			abiJSON = json.RawMessage(encoded)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("合约名 %s 重复", name)
		}
		out[name] = RawArtifact{ABI: abiJSON, Bin: contract.Bin}
	}
	return out, nil
}
