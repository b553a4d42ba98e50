package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	codesIssuedTotal      prometheus.Counter
	consentsGrantedTotal  prometheus.Counter
	consentsDeclinedTotal prometheus.Counter
	tokensExchangedTotal  prometheus.Counter
	tokensRefreshedTotal  prometheus.Counter
)

// InitCustomMetrics initializes and registers the authorization metrics.
// It should be called once at application startup; when it is not called
// (library use, tests), the increment helpers are no-ops.
func InitCustomMetrics(reg prometheus.Registerer) {
	codesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	consentsGrantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_consents_granted_total",
		Help: "Total number of consent decisions recorded as granted.",
	})
	consentsDeclinedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_consents_declined_total",
		Help: "Total number of consent decisions recorded as declined.",
	})
	tokensExchangedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_tokens_exchanged_total",
		Help: "Total number of tokens minted from authorization codes.",
	})
	tokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_tokens_refreshed_total",
		Help: "Total number of refresh rotations performed.",
	})

	for name, collector := range map[string]prometheus.Collector{
		"codesIssuedTotal":      codesIssuedTotal,
		"consentsGrantedTotal":  consentsGrantedTotal,
		"consentsDeclinedTotal": consentsDeclinedTotal,
		"tokensExchangedTotal":  tokensExchangedTotal,
		"tokensRefreshedTotal":  tokensRefreshedTotal,
	} {
		if reg == nil {
			continue
		}
		if err := reg.Register(collector); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}

// CodesIssued increments the issued-codes counter.
func CodesIssued() {
	if codesIssuedTotal != nil {
		codesIssuedTotal.Inc()
	}
}

// ConsentsRecorded increments the granted or declined consent counter.
func ConsentsRecorded(granted bool) {
	if granted && consentsGrantedTotal != nil {
		consentsGrantedTotal.Inc()
	}
	if !granted && consentsDeclinedTotal != nil {
		consentsDeclinedTotal.Inc()
	}
}

// TokensExchanged increments the code-exchange counter.
func TokensExchanged() {
	if tokensExchangedTotal != nil {
		tokensExchangedTotal.Inc()
	}
}

// TokensRefreshed increments the refresh-rotation counter.
func TokensRefreshed() {
	if tokensRefreshedTotal != nil {
		tokensRefreshedTotal.Inc()
	}
}
