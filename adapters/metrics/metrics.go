// Package metrics provides Prometheus metrics collection for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the ledger.
type Collector struct {
	// Quota gate metrics
	QuotaChecks  *prometheus.CounterVec
	QuotaDenials *prometheus.CounterVec
	Charges      *prometheus.CounterVec

	// Credit metrics
	CreditGrants   *prometheus.CounterVec
	CreditConsumes *prometheus.CounterVec

	// Token metrics
	TokenIssues *prometheus.CounterVec
	TokenClaims *prometheus.CounterVec
	ShareChecks *prometheus.CounterVec

	// Store metrics
	WriteConflicts *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newWith(promauto.With(reg))
}

func newWith(factory promauto.Factory) *Collector {
	return &Collector{
		QuotaChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "quota_checks_total",
				Help:      "Total number of quota checks",
			},
			[]string{"resource", "allowed"},
		),
		QuotaDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "quota_denials_total",
				Help:      "Total number of quota checks denied",
			},
			[]string{"resource"},
		),
		Charges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "charges_total",
				Help:      "Total usage units charged after successful operations",
			},
			[]string{"resource"},
		),
		CreditGrants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "credit_grants_total",
				Help:      "Total number of bonus credit grants",
			},
			[]string{"source"},
		),
		CreditConsumes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "credit_consumes_total",
				Help:      "Total number of credit consume attempts",
			},
			[]string{"outcome"},
		),
		TokenIssues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "token_issues_total",
				Help:      "Total number of tokens issued",
			},
			[]string{"kind"},
		),
		TokenClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "token_claims_total",
				Help:      "Total number of invite claim attempts",
			},
			[]string{"outcome"},
		),
		ShareChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "share_checks_total",
				Help:      "Total number of share token validity checks",
			},
			[]string{"outcome"},
		),
		WriteConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "write_conflicts_total",
				Help:      "Total number of lost races on atomic conditional updates",
			},
			[]string{"store"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}
