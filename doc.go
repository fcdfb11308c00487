// Package buildtrack implements the construction-site management backend:
// account lifecycle (registration, email OTP verification, admin approval,
// login with lockout, password recovery), JWT session issuance, and the
// per-site realtime chat channel backed by durable message history.
//
// Account lifecycle:
//
//	Unregistered -> PendingEmailVerification -> PendingAdminApproval -> Active
//
// Accounts with role admin or super_admin skip the admin-approval gate; the
// gate applies to role "user" only. All time-bounded state (OTPs, lockouts,
// tokens) is checked lazily against the clock at use time; nothing sweeps
// expired records in the background.
package buildtrack
