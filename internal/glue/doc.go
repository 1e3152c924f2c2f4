// Package glue models spray paths and their per-segment settings.
//
// A Path is an ordered sequence of 2-D points plus optional Overrides.
// The Resolver merges a path's overrides with the engine-level defaults
// into a fully resolved Segment, which the execution engine snapshots
// for the duration of that path.
//
// Resolution policy: an absent override falls back to the default;
// numeric delays never resolve to zero unless zero was explicitly
// configured as the default.
package glue
