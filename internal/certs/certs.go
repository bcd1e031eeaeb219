// Package certs maintains a self-signed development certificate so browsers
// on the local network can reach the camera APIs over HTTPS.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certFile = "signspeak.crt"
	keyFile  = "signspeak.key"

	validity    = 365 * 24 * time.Hour
	renewBefore = 24 * time.Hour
)

// Manager keeps the certificate pair in a directory.
type Manager struct {
	dir   string
	hosts []string
	now   func() time.Time
}

// NewManager covers localhost, loopback and every local interface address in
// addition to hosts.
func NewManager(dir string, hosts ...string) *Manager {
	return &Manager{dir: dir, hosts: hosts, now: time.Now}
}

func (m *Manager) Paths() (string, string) {
	return filepath.Join(m.dir, certFile), filepath.Join(m.dir, keyFile)
}

// Ensure returns the certificate and key paths, generating a new pair when
// none exists or the current one is about to expire.
func (m *Manager) Ensure() (string, string, error) {
	certPath, keyPath := m.Paths()

	cert, err := loadCertificate(certPath)
	if err == nil && !m.expiring(cert) {
		if _, err := os.Stat(keyPath); err == nil {
			return certPath, keyPath, nil
		}
	}

	if err := m.generate(certPath, keyPath); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

// TLSConfig loads the ensured pair into a server configuration.
func (m *Manager) TLSConfig() (*tls.Config, error) {
	certPath, keyPath, err := m.Ensure()
	if err != nil {
		return nil, err
	}
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
	}, nil
}

func (m *Manager) expiring(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(m.now().Add(renewBefore))
}

func (m *Manager) generate(certPath, keyPath string) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	now := m.now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"SignSpeak Development"}, CommonName: "signspeak.local"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range m.subjectHosts() {
		if ip := net.ParseIP(host); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if err := writePEM(keyPath, "EC PRIVATE KEY", keyDER, 0o600); err != nil {
		return err
	}
	return writePEM(certPath, "CERTIFICATE", der, 0o644)
}

func (m *Manager) subjectHosts() []string {
	seen := map[string]bool{}
	var hosts []string
	add := func(h string) {
		if h != "" && !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}

	add("localhost")
	add("127.0.0.1")
	add("::1")
	for _, h := range m.hosts {
		add(h)
	}
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLinkLocalUnicast() {
				add(ipnet.IP.String())
			}
		}
	}
	return hosts
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse certificate PEM")
	}
	return x509.ParseCertificate(block.Bytes)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
