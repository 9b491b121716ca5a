package request

import (
	"github.com/go-playground/validator/v10"

	"github.com/mrgoonie/savedb/internal/storage"
)

// CreateBackup is the backup request document. Credentials inside Storage
// are opaque pass-through values; they are never persisted or logged.
type CreateBackup struct {
	Name          string        `json:"name" validate:"max=200"`
	ConnectionURL string        `json:"connectionUrl" validate:"required"`
	Storage       BackupStorage `json:"storage"`
}

// BackupStorage is the wire form of the destination union: either the
// object-store fields are set, or GoogleDrive is, never both.
type BackupStorage struct {
	Provider  string `json:"provider"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Endpoint  string `json:"endpoint"`
	BaseURL   string `json:"baseUrl"`
	BasePath  string `json:"basePath"`

	GoogleDrive *GoogleDrive `json:"googleDrive"`
}

type GoogleDrive struct {
	FolderID       string   `json:"folderId"`
	IsPublic       bool     `json:"isPublic"`
	SharedEmails   []string `json:"sharedEmails" validate:"omitempty,dive,email"`
	ServiceAccount string   `json:"serviceAccount"`
}

// Descriptor converts the wire document into the closed union consumed by
// the pipeline.
func (r CreateBackup) Descriptor() storage.Descriptor {
	if g := r.Storage.GoogleDrive; g != nil {
		return storage.Descriptor{Drive: &storage.ManagedDrive{
			FolderID:       g.FolderID,
			IsPublic:       g.IsPublic,
			SharedEmails:   g.SharedEmails,
			ServiceAccount: g.ServiceAccount,
		}}
	}
	s := r.Storage
	return storage.Descriptor{ObjectStore: &storage.ObjectStore{
		Provider:  s.Provider,
		Bucket:    s.Bucket,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Endpoint:  s.Endpoint,
		BaseURL:   s.BaseURL,
		BasePath:  s.BasePath,
	}}
}

func validateBackupStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(BackupStorage)

	objectStore := s.Provider != "" || s.Bucket != "" || s.Region != "" ||
		s.AccessKey != "" || s.SecretKey != "" || s.Endpoint != ""

	switch {
	case s.GoogleDrive != nil && objectStore:
		sl.ReportError(s.GoogleDrive, "googleDrive", "GoogleDrive", "storage_union", "")
	case s.GoogleDrive == nil && !objectStore:
		sl.ReportError(s, "storage", "Storage", "storage_union", "")
	case s.GoogleDrive != nil:
		if s.GoogleDrive.ServiceAccount == "" {
			sl.ReportError(s.GoogleDrive.ServiceAccount, "serviceAccount", "ServiceAccount", "required", "")
		}
	default:
		if s.Bucket == "" {
			sl.ReportError(s.Bucket, "bucket", "Bucket", "required", "")
		}
		if s.AccessKey == "" {
			sl.ReportError(s.AccessKey, "accessKey", "AccessKey", "required", "")
		}
		if s.SecretKey == "" {
			sl.ReportError(s.SecretKey, "secretKey", "SecretKey", "required", "")
		}
		if s.Endpoint == "" {
			sl.ReportError(s.Endpoint, "endpoint", "Endpoint", "required", "")
		}
	}
}
