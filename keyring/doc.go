// Package keyring manages the rolling HS256 signing keys: which key signs new
// access tokens, which previous key is still honored during the overlap
// window, and when the next rotation is due. Rotation is idempotent under
// concurrency; any number of schedulers can call CheckAndRotate and exactly
// one promotion lands per due interval.
//
// With rotation disabled the keyring degrades to a single static key and all
// rotation operations report ErrRotationDisabled.
package keyring
