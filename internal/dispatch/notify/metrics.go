package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_push_total",
		Help: "Push notification attempts grouped by outcome.",
	}, []string{"result"})

	smsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_sms_total",
		Help: "SMS delivery attempts grouped by outcome.",
	}, []string{"result"})
)
