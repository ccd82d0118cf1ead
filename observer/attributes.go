package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for strata spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrBatchSize  = attribute.Key("strata.batch.size")
	AttrBatchFirst = attribute.Key("strata.batch.first_id")
	AttrBatchLast  = attribute.Key("strata.batch.last_id")

	AttrSearchK    = attribute.Key("strata.search.k")
	AttrSearchHits = attribute.Key("strata.search.hits")

	AttrParentID = attribute.Key("strata.parent_id")
	AttrSourceID = attribute.Key("strata.source_id")

	AttrQueryTopK    = attribute.Key("strata.query.top_k")
	AttrQueryResults = attribute.Key("strata.query.results")
	AttrQueryMode    = attribute.Key("strata.query.mode")

	AttrStatus = attribute.Key("status")
)
