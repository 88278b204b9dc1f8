// Package library owns the processed-paper output tree and its SQLite index.
//
// Each paper lives under <output_dir>/<id>/ with its bilingual articles, rag
// tree and metadata. The index (library.db) lists papers whose metadata has
// been registered; RefreshIndex rebuilds it from disk and Deduplicate drops rows
// whose directory vanished.
package library
