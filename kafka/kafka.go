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

// Package kafka implements the "kafka" storage driver, which publishes
// instance documents to a topic.
package kafka

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/Shopify/sarama"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// JSONRecord implements the sarama.Encoder interface for dlite.Record using
// json.
type JSONRecord dlite.Record

// Encode marshals the record to json.
func (r JSONRecord) Encode() ([]byte, error) {
	return json.Marshal(dlite.Record(r))
}

// Length returns the length of the marshalled json.
func (r JSONRecord) Length() int {
	bytes, _ := r.Encode()
	return len(bytes)
}

// ParseLocation splits a "host:port[,host:port]/topic" location.
func ParseLocation(location string) (hosts []string, topic string, err error) {
	i := strings.LastIndexByte(location, '/')
	if i <= 0 || i == len(location)-1 {
		return nil, "", dlite.ConfigError(errors.Errorf("%q is not host:port[,host:port]/topic", location), "kafka location")
	}
	for _, h := range strings.Split(location[:i], ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, location[i+1:], nil
}

// Driver publishes records with a sync producer. Each message is keyed by
// the instance UUID.
type Driver struct {
	// NewProducer creates the producer for a set of hosts.
	NewProducer func(hosts []string, conf *sarama.Config) (sarama.SyncProducer, error)
	// Log receives a line per message sent. Nil discards them.
	Log dlite.Logger
}

// NewDriver returns a Driver connecting to real brokers and logging to
// stderr.
func NewDriver() *Driver {
	return &Driver{
		NewProducer: sarama.NewSyncProducer,
		Log:         dlite.NewLogger(os.Stderr, false),
	}
}

func (d *Driver) logger() dlite.Logger {
	if d.Log == nil {
		return dlite.NopLogger{}
	}
	return d.Log
}

func init() {
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	dlite.RegisterDriver("kafka", NewDriver(), "application/x-kafka")
}

// Save implements dlite.Driver. The "topic" option overrides the topic of
// location; the options read by TLSFromOptions enable TLS.
func (d *Driver) Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	hosts, topic, err := ParseLocation(location)
	if err != nil {
		return err
	}
	topic = opts.Get("topic", topic)

	tlsConf, err := GetTLSConfig(TLSFromOptions(opts))
	if err != nil {
		return err
	}

	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	if tlsConf != nil {
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConf
	}
	producer, err := d.NewProducer(hosts, conf)
	if err != nil {
		return dlite.NetworkError(err, "getting new producer")
	}
	defer producer.Close()

	r := st.Record()
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(r.UUID),
		Value: JSONRecord(*r),
	}
	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return dlite.NetworkError(err, "sending %s to %s", r.UUID, topic)
	}
	if opts.Bool("verbose") {
		d.logger().Printf("sent %s to %s/%d at offset %d", r.UUID, topic, partition, offset)
	} else {
		d.logger().Debugf("sent %s to %s/%d at offset %d", r.UUID, topic, partition, offset)
	}
	return nil
}
