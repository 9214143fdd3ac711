// Package resolution holds the types shared by the resolution engine and its
// collaborators: the document store and model provider interfaces, search
// requests and responses, job states, and job events.
//
// The engine itself lives in the sub-packages:
//
//   - clause: backend-neutral boolean query DSL
//   - model: entity models, attribute values, matchers
//   - input: resolution requests validated against a model
//   - query: per-hop query construction
//   - job: the hop loop, resolution state, and results
//   - storage: SQLite and in-memory stores
package resolution
