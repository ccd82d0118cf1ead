// Package strata is a two-tier knowledge base engine for retrieval-augmented
// generation in Go.
//
// Documents are split into coarse parent chunks, which are persisted in a
// ParentStore, and fine child chunks, which are embedded and written to a
// similarity-searchable ChildIndex. Each child carries a back-reference to
// its parent. At query time the Retriever searches children, groups the hits
// by parent and returns parent-level results.
//
// # Quick Start
//
//	parents := sqlite.New("strata.db")
//	children := sqlite.NewChildIndex(parents.DB(), "knowledge_base")
//	emb := openaicompat.NewEmbedding(apiKey, "text-embedding-3-small", 1536)
//
//	pipe, _ := ingest.NewPipeline(parents, children, emb)
//	res, err := pipe.IndexDocument(ctx, ingest.Document{
//		SourceID: "handbook.md",
//		Text:     text,
//	})
//
//	r := strata.NewRetriever(parents, children, emb)
//	results, err := r.Query(ctx, "what is the sensory requirement?", 5)
//
// # Core Interfaces
//
//   - ParentStore: durable parent records with listing and per-source aggregation
//   - ChildIndex: child records with embeddings and similarity search
//   - EmbeddingProvider: order-preserving text embedding
//
// Splitting lives in package chunk, indexing in package ingest, storage
// backends under store/ and embedding providers under provider/.
package strata
