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

// Package s3 fetches s3://bucket/key URLs and implements the "s3" storage
// driver.
package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/json"
	"github.com/pkg/errors"
)

// Option is a functional option type for Client.
type Option func(c *Client)

// OptRegion sets the AWS region.
func OptRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// OptS3 sets the S3 API implementation, which is otherwise created from a
// default AWS session on first use.
func OptS3(api s3iface.S3API) Option {
	return func(c *Client) {
		c.s3 = api
	}
}

// Client reads and writes S3 objects named by s3://bucket/key URLs. It is a
// dlite.Fetcher.
type Client struct {
	region string

	mu sync.Mutex
	s3 s3iface.S3API
}

var _ dlite.Fetcher = &Client{}

// New returns a Client with the options applied.
func New(opts ...Option) *Client {
	c := &Client{region: "us-east-1"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) api() (s3iface.S3API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s3 != nil {
		return c.s3, nil
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(c.region)},
	)
	if err != nil {
		return nil, dlite.ConfigError(err, "aws session")
	}
	c.s3 = s3.New(sess)
	return c.s3, nil
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(rawurl string) (bucket, key string, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", dlite.ConfigError(err, "parse s3 url")
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", dlite.ConfigError(errors.Errorf("%q is not s3://bucket/key", rawurl), "parse s3 url")
	}
	return u.Host, key, nil
}

// Fetch implements dlite.Fetcher.
func (c *Client) Fetch(ctx context.Context, rawurl string) ([]byte, error) {
	bucket, key, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	result, err := api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == s3.ErrCodeNoSuchBucket) {
			return nil, dlite.MissingError("s3 get %s", rawurl)
		}
		return nil, dlite.NetworkError(err, "s3 get %s", rawurl)
	}
	defer result.Body.Close()
	data, err := ioutil.ReadAll(result.Body)
	if err != nil {
		return nil, dlite.NetworkError(err, "s3 read %s", rawurl)
	}
	return data, nil
}

// Save stores the record of st as a DLite JSON document at the s3 URL
// location. Options are those of the json driver.
func (c *Client) Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	bucket, key, err := ParseURL(location)
	if err != nil {
		return err
	}
	data, err := json.Marshal(st.Record(), "", opts)
	if err != nil {
		return err
	}
	api, err := c.api()
	if err != nil {
		return err
	}
	_, err = api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return dlite.NetworkError(err, "s3 put %s", location)
	}
	return nil
}

// Default is the client behind the "s3" driver.
var Default = New()

func init() {
	dlite.RegisterDriver("s3", Default, "application/x-s3")
}
