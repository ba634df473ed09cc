// Package ports declares the interfaces through which the navigation
// engine reaches infrastructure: snapshot persistence and distributed
// locking. Adapters implement them; the contract suite verifies them.
package ports
