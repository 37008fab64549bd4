// Package internal holds token-material helpers shared by the engine and its
// sub-packages: opaque refresh-token generation, session IDs, and family IDs.
// Nothing here touches the store.
package internal
