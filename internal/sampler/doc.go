// Package sampler turns "analyze this clip" into a deterministic, ordered
// sequence of sample timestamps and drives a MediaHandle to each one in turn.
//
// Sample i of N is placed at the midpoint of the i-th equal slice of the
// clip, which keeps samples away from the first and last frame where decoders
// tend to return blank or duplicate pictures. Seeks are strictly sequential:
// the next seek is issued only after the visitor for the current frame
// returns. After a seek signals completion the sampler waits a fixed settle
// delay before handing the frame over, because the completion signal can fire
// before a drawable frame exists.
package sampler
