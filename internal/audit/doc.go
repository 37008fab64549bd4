// Package audit implements the engine's security-event pipeline: a canonical
// event model, pluggable sinks, and an asynchronous dispatcher with bounded
// buffering. Emission is best-effort by design — a saturated or slow sink must
// never block token operations.
package audit
