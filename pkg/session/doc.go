/*
Package session implements session management and persistence
orchestration.

It provides high-level abstractions for handling concurrent access to
session snapshots across multiple replicas, integrating local locks with
distributed locking and long-term storage adapters.
*/
package session
