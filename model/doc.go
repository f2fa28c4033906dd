// Package model defines the provider-agnostic LLM client used by the plan
// synthesizer, a mock client for tests and a rate limiting middleware.
//
// Provider adapters live in sub packages (openai, anthropic, ollama) so the
// planner stays decoupled from vendor SDKs.
package model
