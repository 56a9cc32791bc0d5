// Package metrics defines Prometheus collectors for the media cache.
//
// Collectors are registered with the default registry via promauto at
// package init. The library itself never serves them; an embedding
// application decides whether to expose /metrics.
package metrics
