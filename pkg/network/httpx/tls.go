package httpx

import "golang.org/x/crypto/acme/autocert"

// defaultCertCacheDir is where issued certificates land when the
// config names no cache directory.
const defaultCertCacheDir = ".livelink/certs"

type TLS struct {
	CertManager *autocert.Manager
}

func NewTLSConfig(host, cacheDir string) *TLS {
	if cacheDir == "" {
		cacheDir = defaultCertCacheDir
	}
	tls := TLS{
		CertManager: &autocert.Manager{
			Prompt: autocert.AcceptTOS,
			Cache:  autocert.DirCache(cacheDir),
		},
	}
	if host != "" {
		tls.CertManager.HostPolicy = autocert.HostWhitelist(host)
	}
	return &tls
}
