// Package license implements the license lifecycle for pharmacy nodes:
// minting and verifying hardware-bindable activation keys, onboarding and
// renewing tenants, and gating requests on live license state.
//
// The package is organized around three pieces:
//
//   - KeyCodec turns {pharmacy, expiry, machine} claims into an opaque,
//     tamper-evident key an operator can type, and back.
//   - Authority is the only component allowed to mint keys and mutate
//     license records in the store.
//   - Evaluate (the guard) is a pure predicate over a license record and
//     the current time, producing ACTIVE, SUSPENDED, EXPIRED or UNKNOWN.
//
// The guard is re-evaluated on every privileged request; no component in
// this package caches license state across requests.
package license
