// Package users is the narrow view of local accounts used by remote sign-in.
//
// Store covers reads and auth-token maintenance. PrivilegedCreator is a
// separate capability so that only sign-up can create accounts while the
// caller is still anonymous. PostgresStore implements both over local_users.
//
// Accounts created by sign-up get DisallowPasswordLogin as their password
// hash, so CheckPassword and Authenticate never accept a password for them.
package users
