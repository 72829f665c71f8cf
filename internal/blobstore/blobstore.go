// Package blobstore uploads chunk files to Azure Blob Storage.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Uploader stores one local file as a blob.
type Uploader interface {
	UploadFile(ctx context.Context, container, blob string, file *os.File) error
}

// Azure is an Uploader backed by an azblob client.
type Azure struct {
	client *azblob.Client
}

// NewAzure builds a shared-key client for account. serviceURL may be empty
// for the public endpoint.
func NewAzure(account, accessKey, serviceURL string) (*Azure, error) {
	cred, err := azblob.NewSharedKeyCredential(account, accessKey)
	if err != nil {
		return nil, fmt.Errorf("blobstore: invalid credentials: %w", err)
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create client: %w", err)
	}
	return &Azure{client: client}, nil
}

func (a *Azure) UploadFile(ctx context.Context, container, blob string, file *os.File) error {
	_, err := a.client.UploadFile(ctx, container, blob, file, &azblob.UploadFileOptions{})
	return err
}

// Options configures UploadDir.
type Options struct {
	Dir       string
	Container string
	// Prefix is prepended to every blob name, e.g. "stocktwits/TSLA".
	Prefix string
	// Match selects files by base name. nil uploads everything.
	Match func(name string) bool
	Log   *slog.Logger
}

// Result lists what UploadDir did.
type Result struct {
	Uploaded []string
	Failed   map[string]error
}

// Err joins the per-file failures, or returns nil.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for blob, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", blob, err))
	}
	return errors.Join(errs...)
}

// UploadDir walks Dir and uploads every matching file, keyed by its slash
// separated relative path. A failing file is recorded in the result and the
// walk continues; only a walk error aborts.
func UploadDir(ctx context.Context, up Uploader, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	res := Result{Failed: map[string]error{}}
	log.Info("Starting Azure Blob Storage upload", "input_dir", opts.Dir, "container", opts.Container)

	err := filepath.WalkDir(opts.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.Match != nil && !opts.Match(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(opts.Dir, p)
		if err != nil {
			log.Warn("Could not determine relative path, skipping", "path", p, "error", err)
			return nil
		}
		blob := filepath.ToSlash(rel)
		if opts.Prefix != "" {
			blob = path.Join(opts.Prefix, blob)
		}

		if err := uploadOne(ctx, up, opts.Container, blob, p); err != nil {
			log.Error("Failed to upload blob", "blob_name", blob, "error", err)
			res.Failed[blob] = err
			return nil
		}
		log.Info("Successfully uploaded file", "local_path", p, "blob_name", blob)
		res.Uploaded = append(res.Uploaded, blob)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("blobstore: walk %s: %w", opts.Dir, err)
	}
	log.Info("Azure Blob Storage upload finished", "uploaded", len(res.Uploaded), "failed", len(res.Failed))
	return res, nil
}

func uploadOne(ctx context.Context, up Uploader, container, blob, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return up.UploadFile(ctx, container, blob, f)
}
