package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Submissions counts form submissions by method and outcome
	// (success, rejected, failed).
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devsettings_form_submissions_total",
		Help: "Integration form submissions by method and outcome",
	}, []string{"method", "outcome"})

	// ScopeErrorsRemapped counts scope rejections filed under a permission field.
	ScopeErrorsRemapped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devsettings_scope_errors_remapped_total",
		Help: "Scope rejection messages remapped onto permission fields",
	}, []string{"resource"})

	// ScopeErrorsDropped counts scope rejections that could not be placed.
	ScopeErrorsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devsettings_scope_errors_dropped_total",
		Help: "Scope rejection messages dropped during remapping",
	}, []string{"reason"})

	// TokenOperations counts internal integration token changes.
	TokenOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devsettings_token_operations_total",
		Help: "Internal integration token creations and revocations",
	}, []string{"op"})

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devsettings_http_requests_total",
		Help: "API requests by method, route and status",
	}, []string{"method", "route", "status"})
)

// Register registers all collectors on reg (or the default registerer).
// Already-registered collectors are not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{Submissions, ScopeErrorsRemapped, ScopeErrorsDropped, TokenOperations, HTTPRequests} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
