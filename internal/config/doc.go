// Package config 负责加载 ContractHub 的运行配置：默认值、JSON/YAML 配置文件与
// CONTRACTHUB_ 前缀的环境变量依次覆盖，最终校验为一个类型化的 Config。
package config
