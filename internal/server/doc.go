// Package server hosts the Fiber HTTP gateway for the marketing site: the
// middleware chain (request id, body ingestion, API request logging, panic
// recovery), the central JSON error handler, and the seams where API routes
// and the mode-specific asset server are attached. Collaborators are injected
// through AppOptions so the gateway never reads process-wide configuration on
// its own; callers (cmd entry, tests) decide which asset server and registrar
// to wire in.
package server
