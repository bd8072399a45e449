// Package provider wraps the language-model backends chatsync can talk to.
//
// The set of providers is closed: Kind enumerates them and carries the
// capabilities the session layer branches on. Each configured provider
// builds eino chat models on demand, one per model id.
//
//   - groq, openai, openrouter: eino-ext openai model against the
//     provider's OpenAI-compatible endpoint
//   - anthropic: eino-ext claude model
//   - ark: eino-ext ark model (Volcengine)
//
// Model descriptors are listed through a ModelCache, which fetches every
// provider's catalog once per process and then serves it from memory.
//
// Streaming output is consumed through FragmentStream, an explicit
// pull iterator: Next blocks until the next non-empty text fragment, returns
// io.EOF at the end of the stream and any other error when the provider
// fails.
package provider
