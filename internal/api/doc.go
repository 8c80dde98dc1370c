// Package api exposes the upload orchestration endpoints: direct-upload slot
// creation, status polling, best-effort asset deletion, upload token issuance,
// and the binding read/admin surface.
//
// Handlers are stateless per request. Everything needed to resume an upload
// lives in the client (the upload id) or in the provider (the asset state), so
// any server instance can answer any request.
package api
