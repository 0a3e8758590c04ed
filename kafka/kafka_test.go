package kafka_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/kafka"
	"github.com/pilosa/oteapi-dlite/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	hosts, topic, err := kafka.ParseLocation("k1:9092, k2:9092/instances")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, hosts)
	assert.Equal(t, "instances", topic)

	for _, bad := range []string{"", "k1:9092", "/topic", "k1:9092/"} {
		_, _, err := kafka.ParseLocation(bad)
		assert.Equal(t, dlite.KindConfig, dlite.KindOf(err), bad)
	}
}

func TestSave(t *testing.T) {
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "hp")
	require.NoError(t, err)
	require.NoError(t, inst.Set("theta0", 50))

	var gotHosts []string
	var prod *mocks.SyncProducer
	d := &kafka.Driver{NewProducer: func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error) {
		gotHosts = hosts
		assert.True(t, conf.Producer.Return.Successes)
		prod = mocks.NewSyncProducer(t, conf)
		prod.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var r dlite.Record
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if r.UUID != inst.UUID || r.Properties["theta0"] != 50.0 {
				return errors.Errorf("unexpected record %+v", r)
			}
			return nil
		})
		return prod, nil
	}}
	require.NoError(t, d.Save(context.Background(), inst, "k1:9092/instances", nil))
	assert.Equal(t, []string{"k1:9092"}, gotHosts)
}

func TestSaveVerboseLogs(t *testing.T) {
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "hp")
	require.NoError(t, err)

	var buf bytes.Buffer
	d := &kafka.Driver{
		NewProducer: func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error) {
			p := mocks.NewSyncProducer(t, conf)
			p.ExpectSendMessageAndSucceed()
			return p, nil
		},
		Log: dlite.NewLogger(&buf, false),
	}
	require.NoError(t, d.Save(context.Background(), inst, "k1:9092/instances", nil))
	assert.Empty(t, buf.String())

	require.NoError(t, d.Save(context.Background(), inst, "k1:9092/instances", dlite.ParseOptions("verbose")))
	assert.Contains(t, buf.String(), "sent "+inst.UUID+" to instances/")
}

func TestSaveFailure(t *testing.T) {
	inst, err := test.MustMeta(t, test.HallPetch).NewInstance(nil, "")
	require.NoError(t, err)
	d := &kafka.Driver{NewProducer: func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error) {
		p := mocks.NewSyncProducer(t, conf)
		p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		return p, nil
	}}
	err = d.Save(context.Background(), inst, "k1:9092/instances", dlite.Options{"topic": "other"})
	assert.True(t, dlite.Retryable(err))

	d.NewProducer = func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error) {
		return nil, sarama.ErrOutOfBrokers
	}
	err = d.Save(context.Background(), inst, "k1:9092/instances", nil)
	assert.Equal(t, dlite.KindNetwork, dlite.KindOf(err))
}

func TestRegistered(t *testing.T) {
	name, err := dlite.DriverForMediaType("application/x-kafka")
	require.NoError(t, err)
	assert.Equal(t, "kafka", name)
}
