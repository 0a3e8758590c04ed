package kafka_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/kafka"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeyPair writes a self-signed certificate and its key to dir.
func writeKeyPair(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "broker"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "client.crt")
	keyPath = filepath.Join(dir, "client.key")
	require.NoError(t, ioutil.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, ioutil.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certPath, keyPath
}

func TestTLSFromOptions(t *testing.T) {
	assert.Nil(t, kafka.TLSFromOptions(nil))
	assert.Nil(t, kafka.TLSFromOptions(dlite.ParseOptions("topic=x")))
	assert.Equal(t, &kafka.TLSConfig{SkipVerify: true}, kafka.TLSFromOptions(dlite.ParseOptions("skip-verify")))

	conf, err := kafka.GetTLSConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, conf)
}

func TestGetTLSConfig(t *testing.T) {
	dir := test.TempDir(t, "kafkatls")
	certPath, keyPath := writeKeyPair(t, dir)

	conf, err := kafka.GetTLSConfig(&kafka.TLSConfig{
		CertificatePath:    certPath,
		CertificateKeyPath: keyPath,
		CACertPath:         certPath,
	})
	require.NoError(t, err)
	assert.Len(t, conf.Certificates, 1)
	assert.NotNil(t, conf.RootCAs)
	assert.False(t, conf.InsecureSkipVerify)

	_, err = kafka.GetTLSConfig(&kafka.TLSConfig{CertificatePath: certPath})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
	_, err = kafka.GetTLSConfig(&kafka.TLSConfig{CACertPath: keyPath})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
	_, err = kafka.GetTLSConfig(&kafka.TLSConfig{CACertPath: filepath.Join(dir, "nope.crt")})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}

func TestSaveTLS(t *testing.T) {
	dir := test.TempDir(t, "kafkatls")
	certPath, keyPath := writeKeyPair(t, dir)
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "")
	require.NoError(t, err)

	d := &kafka.Driver{NewProducer: func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error) {
		assert.True(t, conf.Net.TLS.Enable)
		require.NotNil(t, conf.Net.TLS.Config)
		assert.Len(t, conf.Net.TLS.Config.Certificates, 1)
		p := mocks.NewSyncProducer(t, conf)
		p.ExpectSendMessageAndSucceed()
		return p, nil
	}}
	opts := dlite.Options{"certificate": certPath, "key": keyPath}
	require.NoError(t, d.Save(context.Background(), inst, "k1:9093/instances", opts))
}
