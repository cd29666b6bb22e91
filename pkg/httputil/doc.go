// Package httputil provides HTTP handler utilities for the shelf registry:
// the JSON response envelope and common middleware.
//
// Every endpoint answers with the same envelope:
//
//	{"code": 200, "message": "...", "data": ...}
//
// The envelope code mirrors the HTTP status code, so clients can rely on
// either. Middleware covers request logging, panic recovery, request IDs,
// and body size limits.
package httputil
