// Package postgres owns the PostgreSQL connection pool and the schema used by
// the sign-in service.
//
// # Schema
//
//	local_users   login (PK), email, password_hash, superuser_access, token_auth
//	account_link  "user" -> local_users.login ON DELETE CASCADE
//	              PRIMARY KEY (provider_user, provider)
//	              UNIQUE ("user", provider)
//
// The two constraints on account_link are what serialize concurrent link
// attempts: the losing insert fails with SQLSTATE 23505, which callers detect
// with IsUniqueViolation and treat as "already linked".
//
// # Migrations
//
// Migrate applies GetMigrations in version order. Each migration runs in its
// own transaction and is recorded in schema_migrations, so Migrate is safe to
// call on every start.
//
// # Testing
//
// Files tagged integration start a real PostgreSQL with testcontainers:
//
//	go test -tags integration ./...
package postgres
