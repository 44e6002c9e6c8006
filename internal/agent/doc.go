// Package agent is the LLM call adapter.
//
// A [Runtime] holds a [Provider] and a registry of named agent
// [Definition]s resolved by id at call time. [Generate] performs one
// structured-output call (JSON decode, schema validation, one repair pass),
// [GenerateText] and [StreamText] perform free-text calls.
//
// Provider failures are classified into [ContentLengthError] (the input did
// not fit the context window, recovered by callers through re-chunking),
// [APIError] (any other upstream failure) and [NoObjectError] (the model
// answered but produced no usable object). Oversized requests are rejected
// locally with the MESSAGE_TOO_LARGE internal code, which [IsContentLength]
// also reports.
//
// Supported providers: Anthropic and Ollama/LM Studio over plain HTTP,
// OpenAI through the openai-go SDK and Gemini through the Vertex AI SDK.
// The HTTP providers share a retry helper with exponential back-off for
// rate limits and 5xx responses.
package agent
