// Package chunk splits documents into the two tiers used for indexing:
// coarse parent chunks that are stored and returned to callers, and fine
// child chunks that are embedded and searched.
//
// Lengths are counted in characters (runes), never bytes, and every split
// cuts on a rune boundary. Markdown-style pipe tables inside a parent are
// detected by ChildSplitter and emitted as a single table chunk rendered as
// numbered records, regardless of the child size limit.
package chunk
