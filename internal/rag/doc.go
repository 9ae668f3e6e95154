// Package rag provides retrieval-augmented generation for the chat gateway.
//
// This package implements:
//   - Document indexing through an injected Embedder
//   - Vector persistence in the kv store, one hash per document
//   - Top-K cosine similarity search over every stored vector
//
// Search is a brute-force cursor scan, O(N) per query. There is no vector
// index and no deletion path; re-indexing an id overwrites it.
package rag
