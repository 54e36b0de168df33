package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
)

// Network is a card scheme whose settlement files the back office ingests.
type Network string

const (
	NetworkVisa       Network = "visa"
	NetworkMastercard Network = "mastercard"
)

// Upload strategy names.
const (
	StrategyBatch   = "batch"
	StrategyPerFile = "per-file"
)

// File is one settlement file to upload.
type File struct {
	Name string
	Data []byte
}

// UploadResult records which strategy succeeded and the raw server answers,
// one per request made.
type UploadResult struct {
	Strategy  string
	Responses [][]byte
}

// Uploader sends settlement files to the invoice endpoints. The batch
// endpoint is tried first for several files and the single-file endpoint
// first for one; the other serves as the fallback.
type Uploader struct {
	c       *Client
	log     hclog.Logger
	metrics *goSession.Metrics
}

// NewUploader returns an Uploader using c, which should carry an Authorizer.
func NewUploader(c *Client, log hclog.Logger, metrics *goSession.Metrics) *Uploader {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Uploader{c: c, log: log.Named("upload"), metrics: metrics}
}

// Upload sends files for network.
func (u *Uploader) Upload(ctx context.Context, network Network, files ...File) (*UploadResult, error) {
	switch network {
	case NetworkVisa, NetworkMastercard:
	default:
		return nil, fmt.Errorf("upload: unknown network %q", network)
	}
	if len(files) == 0 {
		return nil, errors.New("upload: no files")
	}
	for _, f := range files {
		if f.Name == "" {
			return nil, errors.New("upload: file without name")
		}
	}

	batch := Strategy[[][]byte]{Name: StrategyBatch, Run: func(ctx context.Context) ([][]byte, error) {
		body, err := u.post(ctx, batchPath(network), "files", files, http.Header{"X-Prevent-Redirect": {"true"}})
		if err != nil {
			return nil, err
		}
		return [][]byte{body}, nil
	}}
	perFile := Strategy[[][]byte]{Name: StrategyPerFile, Run: func(ctx context.Context) ([][]byte, error) {
		out := make([][]byte, 0, len(files))
		for _, f := range files {
			body, err := u.post(ctx, singlePath(network), "file", []File{f}, nil)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out = append(out, body)
		}
		return out, nil
	}}

	order := []Strategy[[][]byte]{batch, perFile}
	if len(files) == 1 {
		order = []Strategy[[][]byte]{perFile, batch}
	}

	responses, used, err := RunFallback(ctx, u.log, u.metrics, order...)
	if err != nil {
		return nil, err
	}
	u.log.Info("upload complete", "network", string(network), "files", len(files), "strategy", used)
	return &UploadResult{Strategy: used, Responses: responses}, nil
}

func batchPath(n Network) string {
	return "/api/invoices/upload/" + string(n) + "/list-csv-files"
}

func singlePath(n Network) string {
	return "/api/invoices/upload/" + string(n)
}

func (u *Uploader) post(ctx context.Context, path, field string, files []File, header http.Header) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", mw.FormDataContentType())

	var out []byte
	err := u.c.send(ctx, call{
		op:      "upload",
		method:  http.MethodPost,
		path:    path,
		raw:     buf.Bytes(),
		header:  h,
		rawOut:  &out,
		noRetry: true,
	})
	return out, err
}
