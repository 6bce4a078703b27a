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


// Package s3 publishes harvest artifacts to an S3 bucket.
package s3

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var _ harvest.Publisher = &Publisher{}

// PubOption is a functional option type for s3.Publisher.
type PubOption func(p *Publisher)

// OptPubBucket is a PubOption which sets the S3 bucket for a Publisher.
func OptPubBucket(bucket string) PubOption {
	return func(p *Publisher) {
		p.bucket = bucket
	}
}

// OptPubRegion is a PubOption which sets the AWS region for a Publisher.
func OptPubRegion(region string) PubOption {
	return func(p *Publisher) {
		p.region = region
	}
}

// OptPubPrefix puts every object under prefix.
func OptPubPrefix(prefix string) PubOption {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// OptPubConcurrency sets how many files are uploaded at once.
func OptPubConcurrency(n int) PubOption {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// OptPubUploader replaces the uploader built from the region.
func OptPubUploader(u s3manageriface.UploaderAPI) PubOption {
	return func(p *Publisher) {
		p.uploader = u
	}
}

// OptPubLogger sets the logger.
func OptPubLogger(l harvest.Logger) PubOption {
	return func(p *Publisher) {
		p.log = l
	}
}

// Publisher is a harvest.Publisher which uploads files to S3. Each file is
// stored under the prefix by its base name.
type Publisher struct {
	bucket      string
	prefix      string
	region      string
	concurrency int

	uploader s3manageriface.UploaderAPI
	log      harvest.Logger
}

// NewPublisher returns a new Publisher with the options applied.
func NewPublisher(opts ...PubOption) (*Publisher, error) {
	p := &Publisher{
		region:      "us-east-1",
		concurrency: 4,
		log:         harvest.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bucket == "" {
		return nil, errors.New("no bucket")
	}
	if p.uploader == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(p.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		p.uploader = s3manager.NewUploader(sess)
	}
	return p, nil
}

// Key returns the object key for a local file.
func (p *Publisher) Key(file string) string {
	return path.Join(p.prefix, filepath.Base(file))
}

// Publish uploads every file, stopping at the first failure.
func (p *Publisher) Publish(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, file := range paths {
		file := file
		g.Go(func() error {
			return p.upload(ctx, file)
		})
	}
	return g.Wait()
}

func (p *Publisher) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrap(err, "opening artifact")
	}
	defer f.Close()
	key := p.Key(file)
	_, err = p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return errors.Wrapf(err, "uploading %s to s3://%s/%s", file, p.bucket, key)
	}
	p.log.Printf("published s3://%s/%s", p.bucket, key)
	return nil
}

func contentType(file string) string {
	if filepath.Ext(file) == ".csv" {
		return "text/csv"
	}
	return "application/octet-stream"
}
