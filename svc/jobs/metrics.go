package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subledger",
			Name:      "notifications_total",
			Help:      "Subscription notifications by kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	servicesDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subledger",
		Name:      "services_deactivated_total",
		Help:      "User services flagged inactive by the notification sweep.",
	})

	servicesPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subledger",
		Name:      "services_purged_total",
		Help:      "Inactive user services removed by the cleanup sweep.",
	})

	resourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "subledger",
			Name:      "resource_usage_percent",
			Help:      "Last sampled host resource usage.",
		},
		[]string{"resource"},
	)

	operatorAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subledger",
			Name:      "operator_alerts_total",
			Help:      "Operator alerts raised by the health monitor.",
		},
		[]string{"resource"},
	)
)
