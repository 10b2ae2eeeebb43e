// Package registry 维护合约名称、地址与 ABI 的登记记录，并将名称解析为链上合约绑定。
//
// 记录只追加不修改。同名的多条记录会被解析器视为冲突；可升级合约通过保留名称
// Dispatcher 的代理合约间接定位，解析时会实时调用代理的 target() 方法。
package registry
