package config

import (
	"time"

	"github.com/spf13/pflag"
)

type (
	Config struct {
		Livelink Livelink
	}
	Livelink struct {
		Debug      bool
		Server     Server
		Monitoring Monitoring
		Auth       Auth
		Session    Session
		Store      Store
	}
	Server struct {
		Address string `fig:"address" default:":5000"`
		Origin  string `fig:"origin"`
		Https   bool
		Tls     Tls
	}
	Tls struct {
		Address      string
		Domain       string
		HttpsCert    string
		HttpsKey     string
		CertCacheDir string `fig:"certCacheDir" default:".livelink/certs"`
	}
	Monitoring struct {
		Port             int    `fig:"port" default:"6601"`
		URLPrefix        string `fig:"urlPrefix" default:"/livelink"`
		MetricEnabled    bool
		ProfilingEnabled bool
	}
	Auth struct {
		// Secret signs and verifies HS256 bearer tokens.
		Secret string `fig:"secret"`
		Issuer string `fig:"issuer" default:"livelink"`
	}
	Session struct {
		RequestTimeout    time.Duration `fig:"requestTimeout" default:"60s"`
		SweepInterval     time.Duration `fig:"sweepInterval" default:"10s"`
		HeartbeatInterval time.Duration `fig:"heartbeatInterval" default:"20s"`
		// HeartbeatGrace is how long a connection may stay silent before the
		// server unregisters it; zero means 2.5x the heartbeat interval.
		HeartbeatGrace time.Duration `fig:"heartbeatGrace"`
	}
	Store struct {
		// PostgresDsn enables the durable history store; empty keeps
		// history in memory only.
		PostgresDsn  string        `fig:"postgresDsn"`
		QueryTimeout time.Duration `fig:"queryTimeout" default:"2s"`
		EndedLimit   int           `fig:"endedLimit" default:"50"`
	}
)

func (s *Session) Grace() time.Duration {
	if s.HeartbeatGrace > 0 {
		return s.HeartbeatGrace
	}
	return s.HeartbeatInterval * 5 / 2
}

func (s *Server) GetAddr() string {
	if s.Https && s.Tls.Address != "" {
		return s.Tls.Address
	}
	return s.Address
}

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (c *Config) ParseFlags() {
	c.AddFlags(pflag.CommandLine)
	pflag.Parse()
}

func (c *Config) AddFlags(fs *pflag.FlagSet) *Config {
	fs.BoolVarP(&c.Livelink.Debug, "debug", "v", c.Livelink.Debug, "Enable debug logging")
	fs.StringVar(&c.Livelink.Server.Address, "address", c.Livelink.Server.Address, "Server address")
	fs.StringVar(&c.Livelink.Store.PostgresDsn, "dsn", c.Livelink.Store.PostgresDsn, "Postgres DSN for the session history store")
	fs.BoolVarP(&c.Livelink.Monitoring.MetricEnabled, "monitoring.metric", "m", c.Livelink.Monitoring.MetricEnabled, "Enable prometheus metric for server")
	fs.BoolVarP(&c.Livelink.Monitoring.ProfilingEnabled, "monitoring.pprof", "p", c.Livelink.Monitoring.ProfilingEnabled, "Enable golang pprof for server")
	fs.IntVar(&c.Livelink.Monitoring.Port, "monitoring.port", c.Livelink.Monitoring.Port, "Monitoring server port")
	return c
}
