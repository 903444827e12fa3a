// Package http provides HTTP handlers and middleware for the appointment API.
//
// The router exposes the following endpoints:
//   - POST /appointment-series: creates a repeating appointment series and
//     materializes its occurrences (202 Accepted when a large series leaves
//     its tail to a background job). GET /appointment-series?facility={code}
//     lists the series booked at a facility, and GET /appointment-series/{id}
//     returns the full aggregate using the `seriesDTO` payload defined in
//     series_handler.go.
//   - POST /appointment-sets, GET /appointment-sets/{id}: back-to-back groups
//     of one-off appointments exchanging the `setDTO` payload defined in
//     set_handler.go.
//   - POST /appointments/{id}/cancel, POST /appointments/{id}/uncancel and
//     PATCH /appointments/{id}: scoped occurrence mutations. The request body
//     carries the mutation scope; the response reports the affected occurrence
//     ids and whether the tail of a large mutation was moved to a background
//     job (202 Accepted).
//   - GET /jobs: background job history, filterable by `type` and `failed`.
//
// The caller's identity is taken from the X-Username header set by the
// gateway. Request/response DTOs live alongside their respective handlers so
// tests and documentation share the same ground truth.
package http
