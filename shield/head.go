package shield

import "net/http"

// HeadToGet lets load balancer probes hit routes registered with r.Get():
// the wrapped handler sees a GET, and net/http strips the body from the
// HEAD response on the way out. The swap happens on a clone so the
// original request is left untouched.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			clone := r.Clone(r.Context())
			clone.Method = http.MethodGet
			r = clone
		}
		next.ServeHTTP(w, r)
	})
}
