// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// TLSConfig contains the TLS settings for connecting to brokers.
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

// TLSFromOptions reads a TLSConfig from the driver options "certificate",
// "key", "ca-certificate" and "skip-verify". It returns nil if none is set.
func TLSFromOptions(opts dlite.Options) *TLSConfig {
	c := &TLSConfig{
		CertificatePath:    opts.Get("certificate", ""),
		CertificateKeyPath: opts.Get("key", ""),
		CACertPath:         opts.Get("ca-certificate", ""),
		SkipVerify:         opts.Bool("skip-verify"),
	}
	if *c == (TLSConfig{}) {
		return nil
	}
	return c
}

// GetTLSConfig builds the client side tls.Config of c. A nil c gives a nil
// config.
func GetTLSConfig(c *TLSConfig) (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}
	conf := &tls.Config{
		InsecureSkipVerify: c.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.CertificatePath != "" || c.CertificateKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.CertificatePath, c.CertificateKeyPath)
		if err != nil {
			return nil, dlite.ConfigError(err, "loading keypair")
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	if c.CACertPath != "" {
		b, err := ioutil.ReadFile(c.CACertPath)
		if err != nil {
			return nil, dlite.ConfigError(err, "loading tls ca key")
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(b) {
			return nil, dlite.ConfigError(errors.New("error parsing CA certificate"), "loading tls ca key")
		}
		conf.RootCAs = certPool
	}
	return conf, nil
}
