// Package metrics registers the service's Prometheus collectors.
package metrics

const EcobinNamespace = "ecobin"
