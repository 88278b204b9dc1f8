// Package pipeline converts a source PDF into the artifacts of one paper.
//
// Runner executes its stages in order (extract, translate, structure,
// metadata) inside a scratch directory under <output_dir>/.work. Artifacts
// are moved into the paper directory only after every stage succeeded, with
// the rag tree and metadata moved last, so a cancelled or failed run never
// leaves a paper that looks complete.
//
// Progress is reported per stage as (stage, index, total, percent) where
// percent covers the whole run.
package pipeline
