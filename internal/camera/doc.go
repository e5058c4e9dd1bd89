// Package camera owns the image buffer pool shared between the capture side
// (a driver or simulator writing frames) and the flow pipeline.
//
// Buffers are allocated once. The pipeline borrows the two most recent
// frames with TryGetPair and must hand them back with ReturnPair; while
// loaned, a buffer is never overwritten by capture. Because the newest
// frame of one pair becomes the older frame of the next, a buffer is often
// seen twice, which is what lets the pipeline cache per-frame work keyed on
// Buffer.FrameNumber and Buffer.Meta.
package camera
