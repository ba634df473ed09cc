// Package flow contains the core domain types of the sherpa engine:
// step definitions, navigation references, the mutable session context,
// derived engine state, lifecycle events and sentinel errors.
//
// Types in this package are plain data; all navigation behavior lives in
// the engine (internal/runtime, exposed through the root sherpa package).
package flow
