// Package flow contains the two interchangeable optical-flow estimators
// (block matching and pyramidal KLT) and the outlier-rejecting extractor
// that reduces their raw correspondences to one flow vector and a quality.
//
// Estimators write into a caller-owned slice of at most MaxCorrespondences
// results and never allocate per frame once warmed up.
package flow
