/*
Package health provides a small HTTP readiness checker used by the
worker controller to probe a spawned worker process's readiness
endpoint (/api/readiness) after Start.

	checker := health.NewHTTPChecker("http://127.0.0.1:8090/api/readiness")
	result := checker.Check(ctx)
	if result.Healthy {
		// a response in the expected status range was observed
	}

HTTPChecker's default range treats any 2xx/3xx as healthy; the worker
controller narrows it to exactly 200, so the worker is considered
ready on the first 200 response.
*/
package health
