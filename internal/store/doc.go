// Package store provides access to the shared relational datastore: the
// application's key/value options table and the dedicated bootstrap lock
// table that exists before the application schema does.
//
// All queries are parameterized. Table names cannot be bound, so the
// configured table prefix is validated against a strict character set before
// it is ever interpolated.
package store
