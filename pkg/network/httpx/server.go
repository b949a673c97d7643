package httpx

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/oceanpulse/livelink/pkg/logger"
	"golang.org/x/crypto/acme/autocert"
)

type Server struct {
	http.Server

	autoCert *autocert.Manager
	opts     Options

	listener net.Listener
	redirect *Server
	log      *logger.Logger
}

type (
	Handler        = http.Handler
	HandlerFunc    = http.HandlerFunc
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

func NewServer(address string, handler func(*Server) Handler, options ...Option) (*Server, error) {
	opts := &Options{
		Https:         false,
		HttpsRedirect: true,
		IdleTimeout:   120 * time.Second,
		ReadTimeout:   500 * time.Second,
		WriteTimeout:  500 * time.Second,
	}
	opts.override(options...)

	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: *opts,
		log:  opts.Logger,
	}
	server.Handler = handler(server)

	if opts.Https && opts.IsAutoHttpsCert() {
		server.autoCert = NewTLSConfig(opts.HttpsDomain, opts.HttpsCertCacheDir).CertManager
		server.TLSConfig = server.autoCert.TLSConfig()
	}

	addr := server.Addr
	if addr == "" {
		addr = ":http"
		if opts.Https {
			addr = ":https"
		}
		opts.Logger.Warn().Msgf("Empty server address has been changed to %v", addr)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server.listener = listener
	server.Addr = listener.Addr().String()
	opts.Logger.Info().Msgf("httpx %v (%v)", server.Addr, addr)

	return server, nil
}

func (s *Server) Run() { go s.run() }

func (s *Server) run() {
	protocol := s.GetProtocol()
	s.log.Debug().Msgf("Starting %s server on %s", protocol, s.Addr)

	if s.opts.Https && s.opts.HttpsRedirect {
		rdr, err := s.redirection()
		if err != nil {
			s.log.Error().Err(err).Msg("couldn't init redirection server")
		}
		s.redirect = rdr
		go s.redirect.Run()
	}

	var err error
	if s.opts.Https {
		err = s.ServeTLS(s.listener, s.opts.HttpsCert, s.opts.HttpsKey)
	} else {
		err = s.Serve(s.listener)
	}
	switch err {
	case http.ErrServerClosed:
		s.log.Debug().Msgf("%s server was closed", protocol)
		return
	default:
		s.log.Error().Err(err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		_ = s.redirect.Close()
	}
	return s.Server.Shutdown(ctx)
}

func (s *Server) GetProtocol() string {
	protocol := "http"
	if s.opts.Https {
		protocol = "https"
	}
	return protocol
}

func (s *Server) redirection() (*Server, error) {
	addr := s.Addr
	if s.opts.HttpsDomain != "" {
		addr = s.opts.HttpsDomain
	}

	srv, err := NewServer(s.opts.HttpsRedirectAddress, func(serv *Server) Handler {
		h := http.NewServeMux()
		h.Handle("/", HandlerFunc(func(w ResponseWriter, r *Request) {
			httpsURL := url.URL{Scheme: "https", Host: addr, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
			rdr := httpsURL.String()
			if s.log.GetLevel() < logger.InfoLevel {
				s.log.Debug().Str("from", r.Host+r.URL.String()).Str("to", rdr).Msg("Redirect")
			}
			http.Redirect(w, r, rdr, http.StatusFound)
		}))
		if serv.autoCert != nil {
			return serv.autoCert.HTTPHandler(h)
		}
		return h
	},
		WithLogger(s.log),
	)
	s.log.Info().Str("addr", addr).Msg("Start HTTPS redirect server")
	return srv, err
}
