package errors

import "sync"

// Code 表示系统内的统一错误码。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeConfiguration         Code = "CONFIGURATION"
	CodeConnection            Code = "CONNECTION"
	CodeUnsupportedProvider   Code = "UNSUPPORTED_PROVIDER"
	CodeUnknownContract       Code = "UNKNOWN_CONTRACT"
	CodeCacheEmpty            Code = "CACHE_EMPTY"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAmbiguousRecord       Code = "AMBIGUOUS_RECORD"
	CodeNoDispatcherTarget    Code = "NO_DISPATCHER_TARGET"
	CodeAmbiguousDispatcher   Code = "AMBIGUOUS_DISPATCHER"
	CodeDeployerNotConfigured Code = "DEPLOYER_NOT_CONFIGURED"
	CodeDeployerAlreadySet    Code = "DEPLOYER_ALREADY_SET"
	CodeTransaction           Code = "TRANSACTION"
	CodeTimeout               Code = "TIMEOUT"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
)

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	codesMu sync.RWMutex
	codes   = map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, false, true},
		CodeConfiguration:         {"invalid configuration", SeverityWarning, false, false},
		CodeConnection:            {"blockchain connection failure", SeverityWarning, true, true},
		CodeUnsupportedProvider:   {"unsupported blockchain provider", SeverityInfo, false, false},
		CodeUnknownContract:       {"contract is not in the local compiler cache", SeverityInfo, false, false},
		CodeCacheEmpty:            {"no compilation was performed", SeverityInfo, false, false},
		CodeNotFound:              {"contract record not found", SeverityInfo, false, false},
		CodeAmbiguousRecord:       {"multiple registry records for contract", SeverityCritical, false, true},
		CodeNoDispatcherTarget:    {"no dispatcher targets a known contract record", SeverityWarning, false, true},
		CodeAmbiguousDispatcher:   {"more than one dispatcher targets the contract", SeverityCritical, false, true},
		CodeDeployerNotConfigured: {"no deployer address is configured", SeverityWarning, false, false},
		CodeDeployerAlreadySet:    {"deployer address already set", SeverityWarning, false, false},
		CodeTransaction:           {"transaction failed", SeverityWarning, false, true},
		CodeTimeout:               {"operation timed out", SeverityWarning, true, true},
		CodeStorageFailure:        {"registry storage failure", SeverityCritical, true, true},
	}
)

// Register 在初始化阶段登记新的错误码，或覆盖已有错误码的默认行为。
func Register(code Code, attr Attributes) {
	codesMu.Lock()
	defer codesMu.Unlock()
	codes[code] = attr
}

// AttributesOf 返回错误码对应的属性。未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	codesMu.RLock()
	defer codesMu.RUnlock()
	if attr, ok := codes[code]; ok {
		return attr
	}
	return codes[CodeUnknown]
}
