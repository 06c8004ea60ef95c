// Package ranking merges semantic and keyword hits into a ranked, explained
// rule list.
//
// The pipeline is Merge, then Rank:
//
//	candidates, usedFallback := policy.Merge(scopedCatalogue, semanticHits, keywordHits)
//	ranked := policy.Rank(candidates, incidentCounts, maxSources, usedFallback)
//
// Merge unions both hit sets in catalogue order. If the union is empty and the
// catalogue is not, FallbackSelection picks the most critical rules so the
// caller always has something to explain.
//
// Rank computes the composite score
//
//	criticality*CriticalityWeight + min(incidents*IncidentWeight, IncidentCap)
//
// sorts stably by it, truncates, classifies match types and assigns 1-based
// positions. Nothing in this package consults model output, so a ranking can
// always be recomputed from stored scores.
package ranking
