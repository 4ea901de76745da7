// Package conversation implements the ordered, append-only message log
// backing a single analysis. Every read returns deep copies so callers can
// never observe mutation of history through returned references. One Store
// instance is owned by exactly one in-flight analysis; it carries no internal
// locking by contract.
package conversation
