// Package mysql persists the contract registry in MySQL. It owns the
// connection pool settings and applies the embedded schema migrations before
// the store is handed out.
package mysql
