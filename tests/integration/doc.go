// Package integration provides integration tests that verify call log state
// in real databases after relayed requests. These tests use testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
