// Package providers defines the chat provider contract and the fixed
// priority order the gateway walks.
//
// Each backend adapter lives in its own subpackage and implements Provider:
//   - openai: OpenAI-compatible chat and embeddings (primary, secondary-a)
//   - anthropic: Anthropic Messages API (secondary-b)
//   - huggingface: Hugging Face Inference API (secondary-c)
//   - ollama: local Ollama server (local fallback)
package providers
