// Package gateway composes a provider.Adapter registry, the cache &
// observability sink (C8), and cross-cutting middleware (rate limiting,
// tracing) into a single Complete/Stream surface. Generalized from
// features/model/gateway's transport-agnostic Server/RemoteClient pair,
// which wraps one model.Client; this package wraps a provider-routed
// table of adapters plus the trailing sink write the teacher's package
// never had a counterpart for.
package gateway
