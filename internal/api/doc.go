// ABOUTME: Package documentation for the HTTP surface
// ABOUTME: Maps endpoints to the sync engine and the domain handlers

// Package api exposes the delta-sync engine over HTTP.
//
// # Endpoints
//
// Public (no credential):
//
//   - POST /api/auth/register — create a user, returns a signed token
//   - POST /api/auth/login    — verify credentials, returns a signed token
//
// Protected (Bearer token, identity scoped to one tenant):
//
//   - GET /api/sync?since=N — ordered journal rows with version > N
//   - GET /sse/events       — server-sent stream of committed versions
//   - CRUD endpoints for projects, kanban columns and cards, card
//     details (tags, assignees, approvers, sessions), products, orders
//     and tenant users
//
// Every mutation goes through the engine's write pipeline: the response
// carries the canonical post-state, the journal gains rows at a single
// allocated version, and exactly one notification goes out after commit.
//
// # Error surface
//
// 400 for undecodable or invalid bodies, 401 for missing or bad
// credentials, 403 for policy denials, 404 for entities outside the
// caller's tenant, 409 for uniqueness conflicts, 500 for store or
// coordination-service failures. Failed writes leave no trace.
package api
