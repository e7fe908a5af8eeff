// Package http provides HTTP handlers and middleware for the roster API.
//
// The router exposes the following endpoints:
//   - POST /login: issues a session token. Body: {"profile","password"}. Response:
//     {"success","profile","token","expires_at"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie. Rate limited per client.
//   - POST /logout: revokes the session token taken from the Authorization header or
//     the session cookie, and clears the cookie.
//   - POST /password-reset: replaces a profile password when the shared reset token
//     matches. Body: {"profile","token","new_password"}. Rate limited per client.
//   - GET /people, GET /people/raw, GET /people/count: the roster with statuses
//     recomputed from the clock, the roster as stored, and its size.
//   - POST /people, DELETE /people/{id}, POST /people/{id}/start,
//     POST /people/{id}/schedule, POST /people/{id}/reset, POST /system/reset:
//     operator-only roster mutations.
//   - POST /people/{id}/end-time and PATCH /people/{id}: end time and single field
//     edits, open to every profile.
//   - GET /history?date=, GET /history/recent/{days}, GET /reports/{date} and
//     GET /reports/{date}/xlsx: daily snapshots, recent history, and the daily
//     report as JSON or as a workbook.
//   - GET /metrics and GET /healthz: Prometheus metrics and a storage ping.
//
// Schedule writes answer {"success":true,"snapshot":{...}} describing the daily
// snapshot attempt they triggered. Request/response DTOs live alongside their
// respective handlers so tests and documentation share the same ground truth.
package http
