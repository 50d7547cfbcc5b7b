// Package mysql opens MySQL connections for the daemon and applies the
// embedded schema migrations before handing the pool to a store.
package mysql
