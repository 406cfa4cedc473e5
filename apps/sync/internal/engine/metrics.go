package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "social_sync",
		Name:      "sessions_active",
		Help:      "已登录的引擎会话数",
	})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social_sync",
		Name:      "operations_total",
		Help:      "写操作次数",
	}, []string{"op", "result"})

	integrityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social_sync",
		Name:      "integrity_violations_total",
		Help:      "完整性错误次数",
	}, []string{"kind"})

	peerTails = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "social_sync",
		Name:      "peer_tails_active",
		Help:      "活跃的消息尾部订阅数",
	})

	suggestionPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "social_sync",
		Name:      "suggestion_scan_pages",
		Help:      "一次推荐扫描读取的目录页数",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})
)

func observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
