/*
Package observability turns query lifecycle hooks into Prometheus metrics.

Register a Metrics collector and pass its Hooks to the client:

	m := observability.NewMetrics(prometheus.DefaultRegisterer)
	client, err := hmi.New(ctx, "hmi", hmi.WithLifecycleHooks(m.Hooks()))
*/
package observability
