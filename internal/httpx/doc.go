// Package httpx provides the shared HTTP transport for both Salesforce API
// clients. It rate-limits outgoing requests and maps error statuses to
// HTTPError, but performs no retries: transport failures are surfaced to the
// data operations immediately.
//
// Structure:
//
//	client.go - HTTP client with rate limiting and streaming support
//	auth.go   - Authentication strategies (Bearer, session header)
package httpx
