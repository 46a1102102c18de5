// Package feed assembles pages of items a consumer has not seen yet.
//
// An Assembler pulls sorted, cursor-paginated batches from a Source, drops
// every item whose id is in the consumer's SeenSet, and stops once a page is
// full, the source is exhausted, or the attempt budget is spent. The returned
// cursor tracks the source position that was last consulted, not the last
// item handed back to the caller.
//
// Source failures end the loop and yield whatever was gathered so far. An
// invalid cursor or a failed seen-set lookup is returned to the caller.
package feed
