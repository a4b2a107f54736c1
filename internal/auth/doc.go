// Package auth provides credential issuance, rotation and verification for authd.
//
// It implements a two-token model (access → renewal) with:
//   - HS256 tokens carrying subject, type tag, issuer, audience and expiry
//   - Ceiling-preserving renewal rotation: a session lives at most one
//     renewal TTL from the login that started it, however often it rotates
//   - Single-use renewal tokens enforced by a compare-and-swap on the
//     account's renewal slot
//   - bcrypt or Argon2id password hashing with a dummy comparison for
//     unknown emails
//
// Access tokens are stateless. The account's renewal slot is the only
// server-side session state and the Manager is its only writer.
package auth
