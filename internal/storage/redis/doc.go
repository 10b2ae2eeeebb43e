// Package redis keeps the contract registry in Redis. Every record is appended
// to a per-name list and a per-address list so both lookups stay O(records).
package redis
