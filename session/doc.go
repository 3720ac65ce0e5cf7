// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in core so higher level
// packages (agents, runner) never depend on concrete storage; only the wiring
// layer decides which implementation to instantiate.
//
// Two backends are provided:
//   - InMemoryStore: process local, suited to tests and the CLI
//   - RedisStore: durable, shared across processes, backed by go-redis
package session
