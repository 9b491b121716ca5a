// Package storage uploads backup artifacts to the destination named by a
// request: an S3-compatible object store or a managed Google Drive.
package storage

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ObjectStore describes an S3-compatible destination. Credentials are
// opaque pass-through values; they are never persisted or logged.
type ObjectStore struct {
	Provider  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	// BaseURL, when set, is the public CDN origin used to build the
	// public URL instead of the storage endpoint.
	BaseURL  string
	BasePath string
}

// ManagedDrive describes a Google Drive destination operated through a
// service-account credential.
type ManagedDrive struct {
	FolderID       string
	IsPublic       bool
	SharedEmails   []string
	ServiceAccount string
}

// Descriptor is the closed destination union. Exactly one variant is set;
// Validate enforces that before any dispatch happens.
type Descriptor struct {
	ObjectStore *ObjectStore
	Drive       *ManagedDrive
}

func (d Descriptor) Validate() error {
	switch {
	case d.ObjectStore != nil && d.Drive != nil:
		return errors.New("storage destination must name exactly one backend")
	case d.ObjectStore == nil && d.Drive == nil:
		return errors.New("storage destination is missing")
	}
	return nil
}

// Result describes where an uploaded artifact ended up. StorageURL points
// at the origin, PublicURL is what callers should hand out.
type Result struct {
	Provider   string
	StorageURL string
	PublicURL  string
}

// Uploader accepts an artifact buffer and a destination name. Uploads are
// never retried here; the pipeline decides what a failure means.
type Uploader interface {
	Provider() string
	Upload(ctx context.Context, data []byte, name string) (*Result, error)
}

// NewUploader dispatches on the descriptor variant once, at the pipeline
// boundary.
func NewUploader(ctx context.Context, desc Descriptor, logger zerolog.Logger) (Uploader, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Drive != nil {
		return newDriveUploader(ctx, desc.Drive, logger)
	}
	return newObjectStoreUploader(desc.ObjectStore, logger), nil
}
