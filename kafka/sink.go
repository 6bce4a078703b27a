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


// Package kafka announces committed partitions on a Kafka topic.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

var _ harvest.Sink = &Sink{}

// Announcement is the message sent for each committed partition. Each
// observation is its metadata row keyed by column name.
type Announcement struct {
	Instrument   string              `json:"instrument"`
	Sol          int                 `json:"sol"`
	Observations []map[string]string `json:"observations"`
}

// NewAnnouncement builds the Announcement for a batch.
func NewAnnouncement(b *harvest.Batch) Announcement {
	a := Announcement{
		Instrument:   b.Instrument,
		Sol:          int(b.Sol),
		Observations: make([]map[string]string, len(b.Rows)),
	}
	for i, row := range b.Rows {
		obs := make(map[string]string, len(b.Columns))
		for j, c := range b.Columns {
			obs[c] = row[j]
		}
		a.Observations[i] = obs
	}
	return a
}

// Encode implements sarama.Encoder.
func (a Announcement) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// Length implements sarama.Encoder.
func (a Announcement) Length() int {
	bytes, _ := a.Encode()
	return len(bytes)
}

// Sink is a harvest.Sink which sends an Announcement per partition, keyed
// by instrument and sol.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSink connects a synchronous producer to hosts. tlsConfig may be nil.
func NewSink(hosts []string, topic string, tlsConfig *tls.Config) (*Sink, error) {
	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	if tlsConfig != nil {
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}
	producer, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	return NewSinkFromProducer(producer, topic), nil
}

// NewSinkFromProducer wraps an existing producer.
func NewSinkFromProducer(p sarama.SyncProducer, topic string) *Sink {
	return &Sink{producer: p, topic: topic}
}

// Commit implements harvest.Sink.
func (s *Sink) Commit(ctx context.Context, b *harvest.Batch) error {
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%s/%s", b.Instrument, b.Sol)),
		Value: NewAnnouncement(b),
	}
	_, _, err := s.producer.SendMessage(msg)
	return errors.Wrapf(err, "announcing %s sol %v", b.Instrument, b.Sol)
}

// Close closes the producer.
func (s *Sink) Close() error {
	return errors.Wrap(s.producer.Close(), "closing producer")
}
