package registry

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds certificate paths for TLS connections to etcd or to the
// triage service. All fields are optional: without CAFile the system roots
// are used, and a client certificate is presented only when both CertFile
// and KeyFile are set.
type TLSConfig struct {
	// CertFile is the path to the client certificate file (PEM format)
	CertFile string `json:"cert_file" yaml:"cert_file"`

	// KeyFile is the path to the client private key file (PEM format)
	KeyFile string `json:"key_file" yaml:"key_file"`

	// CAFile is the path to the certificate authority file (PEM format)
	CAFile string `json:"ca_file" yaml:"ca_file"`

	// ServerName overrides the name used to verify the server certificate
	ServerName string `json:"server_name" yaml:"server_name"`
}

// ClientConfig creates a tls.Config for client connections.
func (c *TLSConfig) ClientConfig() (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.ServerName,
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, fmt.Errorf("TLS cert file and key file must be set together")
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caData, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		conf.RootCAs = caPool
	}

	return conf, nil
}
