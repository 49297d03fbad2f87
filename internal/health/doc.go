// Package health provides composable probes and the liveness/readiness
// handlers mounted on both listeners.
//
// [All] and [Any] combine probes, [Fixed] is static and [CheckFunc] adapts
// a function. [ShutdownGate] fails readiness as soon as shutdown starts so
// the load balancer drains the instance before the listener closes.
package health
