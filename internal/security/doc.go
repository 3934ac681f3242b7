// Package security implements the account security state machine:
// failed-login counting with temporary lockout, password-reset token
// issuance and redemption, and the guard that keeps at least one active
// administrator.
//
// Everything here is a pure decision over values handed in by the caller.
// Time always comes from the caller's "now"; nothing blocks, performs I/O or
// keeps state. Serializing concurrent mutations of one account or token is
// the persistence layer's job (row locks inside a transaction).
package security
