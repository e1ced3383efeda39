// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the
// orchestration core to talk to multiple providers (OpenAI, Anthropic, Ollama,
// Gemini) without being coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: Message carries a role (user, assistant, system) and ordered
//     text content blocks.
//
//  2. Client Interface: Client.Synchronous sends one request and returns a
//     normalized Response tagged with the ResultKind of the adapter that
//     produced it.
//
//  3. ClientRegistry: clients are created lazily and cached per provider and
//     pricing tier, because free and paid credentials authenticate differently.
//
//  4. Middleware: Middleware wraps every client the registry hands out, for
//     cross-cutting concerns like logging.
//
//  5. Errors: Error classifies provider failures (rate limit, service
//     unavailable, invalid request) so callers can decide whether to retry.
//
//  6. Estimation: EstimateInputTokens and EstimateOutputTokens approximate
//     usage when a provider does not report it.
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface in a subpackage
//  2. Translate between provider-specific types and llm package types
//  3. Map provider errors with FromStatusCode
//  4. Register a ProviderSpec on the ClientRegistry
package llm
