// Package flows holds the engine's pure orchestration logic as dependency
// structs plus run functions. Each flow receives exactly the operations it
// needs, returns a tagged result instead of overloading errors, and performs
// no logging, metrics, or auditing itself. The engine layer owns all side
// observability.
package flows
