// Package testutil contains fixtures and builders shared by tests: a small
// invoice book with branding and an uploaded document, and a fluent builder
// for graph specs. They are not intended for production usage.
package testutil
