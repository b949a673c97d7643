package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/oceanpulse/livelink/pkg/config"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/network/httpx"
	"github.com/oceanpulse/livelink/pkg/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	service.RunnableService

	conf   config.Monitoring
	log    *logger.Logger
	server *httpx.Server
}

// New creates the monitoring sidecar service.
func New(conf config.Monitoring, log *logger.Logger) (*Monitoring, error) {
	serv, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) http.Handler {
			h := http.NewServeMux()

			if conf.ProfilingEnabled {
				prefix := conf.URLPrefix + "/debug/pprof"
				log.Info().Msgf("Profiling is enabled at %v", serv.Addr+prefix)
				h.HandleFunc(prefix+"/", pprof.Index)
				h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
				h.HandleFunc(prefix+"/profile", pprof.Profile)
				h.HandleFunc(prefix+"/symbol", pprof.Symbol)
				h.HandleFunc(prefix+"/trace", pprof.Trace)
				// custom pprof paths need their handlers registered one by one
				h.Handle(prefix+"/allocs", pprof.Handler("allocs"))
				h.Handle(prefix+"/block", pprof.Handler("block"))
				h.Handle(prefix+"/goroutine", pprof.Handler("goroutine"))
				h.Handle(prefix+"/heap", pprof.Handler("heap"))
				h.Handle(prefix+"/mutex", pprof.Handler("mutex"))
				h.Handle(prefix+"/threadcreate", pprof.Handler("threadcreate"))
			}

			if conf.MetricEnabled {
				metricPath := conf.URLPrefix + "/metrics"
				log.Info().Msgf("Prometheus metric is enabled at %v", serv.Addr+metricPath)
				h.Handle(metricPath, promhttp.Handler())
			}

			return h
		},
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &Monitoring{conf: conf, log: log, server: serv}, nil
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.server.Addr)
	m.server.Run()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Info().Msg("Shutting down monitoring server")
	return m.server.Shutdown(ctx)
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
