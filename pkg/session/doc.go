// Package session provides server-side sessions for the sign-in service.
//
// A Session is loaded once per request, passed explicitly through the sign-in
// flow, and committed at the end. It carries the signed-in login, the remote
// sign-in FlowState (anti-replay state, remote-auth flag, retained tokens) and
// single-use form nonces. Nothing is shared between sessions.
//
// Stores:
//
//	RedisStore   JSON values under loginoidc:session:<id> with a TTL
//	MemoryStore  bounded expirable LRU for single instance deployments
package session
