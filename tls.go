package harvest

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// TLSConfig contains TLS configuration for connections to Kafka and Pilosa.
type TLSConfig struct {
	// CertificatePath contains the path to the client certificate (.crt or .pem file)
	CertificatePath string `json:"certificate" help:"Path to certificate file."`
	// CertificateKeyPath contains the path to the certificate key (.key file)
	CertificateKeyPath string `json:"key" help:"Path to certificate key file."`
	// CACertPath is the path to a CA certificate (.crt or .pem file)
	CACertPath string `json:"ca-certificate" help:"Path to CA certificate file."`
	// SkipVerify disables verification of server certificates.
	SkipVerify bool `json:"skip-verify" help:"Disables verification of server certificates."`
}

// Enabled reports whether any TLS option is set.
func (c TLSConfig) Enabled() bool {
	return c.CertificatePath != "" || c.CACertPath != "" || c.SkipVerify
}

type keypairReloader struct {
	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

// newKeypairReloader loads a key pair and reloads it whenever the process
// receives SIGHUP.
func newKeypairReloader(certPath, keyPath string, log Logger) (*keypairReloader, error) {
	result := &keypairReloader{
		certPath: certPath,
		keyPath:  keyPath,
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	result.cert = &cert
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP)
		for range c {
			log.Printf("Received SIGHUP, reloading TLS certificate and key from %q and %q", certPath, keyPath)
			if err := result.maybeReload(); err != nil {
				log.Warnf("Keeping old TLS certificate because the new one could not be loaded: %v", err)
			}
		}
	}()
	return result, nil
}

func (kpr *keypairReloader) maybeReload() error {
	newCert, err := tls.LoadX509KeyPair(kpr.certPath, kpr.keyPath)
	if err != nil {
		return err
	}
	kpr.certMu.Lock()
	defer kpr.certMu.Unlock()
	kpr.cert = &newCert
	return nil
}

func (kpr *keypairReloader) getClientCertificateFunc() func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
		kpr.certMu.RLock()
		defer kpr.certMu.RUnlock()
		return kpr.cert, nil
	}
}

// GetTLSConfig builds a client tls.Config. It returns nil when no option is
// set.
func GetTLSConfig(tlsConfig *TLSConfig, log Logger) (*tls.Config, error) {
	if tlsConfig == nil || !tlsConfig.Enabled() {
		return nil, nil
	}
	conf := &tls.Config{
		InsecureSkipVerify: tlsConfig.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if tlsConfig.CertificatePath != "" {
		if tlsConfig.CertificateKeyPath == "" {
			return nil, errors.New("certificate given without a key")
		}
		kpr, err := newKeypairReloader(tlsConfig.CertificatePath, tlsConfig.CertificateKeyPath, log)
		if err != nil {
			return nil, errors.Wrap(err, "loading keypair")
		}
		conf.GetClientCertificate = kpr.getClientCertificateFunc()
	}
	if tlsConfig.CACertPath != "" {
		b, err := os.ReadFile(tlsConfig.CACertPath)
		if err != nil {
			return nil, errors.Wrap(err, "loading tls ca key")
		}
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM(b); !ok {
			return nil, errors.New("error parsing CA certificate")
		}
		conf.RootCAs = certPool
	}
	return conf, nil
}
