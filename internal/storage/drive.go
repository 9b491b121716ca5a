package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// driveUploader writes artifacts into a Google Drive folder on behalf of a
// service account, then adjusts sharing per the descriptor.
type driveUploader struct {
	svc    *drive.Service
	desc   *ManagedDrive
	logger zerolog.Logger
}

func newDriveUploader(ctx context.Context, desc *ManagedDrive, logger zerolog.Logger) (*driveUploader, error) {
	if desc.ServiceAccount == "" {
		return nil, errors.New("managed drive destination requires a service account credential")
	}
	creds, err := google.CredentialsFromJSON(ctx, []byte(desc.ServiceAccount), drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credential: %w", err)
	}
	svc, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return newDriveUploaderFromService(svc, desc, logger), nil
}

func newDriveUploaderFromService(svc *drive.Service, desc *ManagedDrive, logger zerolog.Logger) *driveUploader {
	return &driveUploader{
		svc:    svc,
		desc:   desc,
		logger: logger.With().Str("component", "drive-uploader").Logger(),
	}
}

func (u *driveUploader) Provider() string { return "google_drive" }

func (u *driveUploader) Upload(ctx context.Context, data []byte, name string) (*Result, error) {
	meta := &drive.File{Name: name}
	if u.desc.FolderID != "" {
		meta.Parents = []string{u.desc.FolderID}
	}

	f, err := u.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink, webContentLink").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("upload to drive: %w", err)
	}

	if u.desc.IsPublic {
		perm := &drive.Permission{Type: "anyone", Role: "reader"}
		if _, err := u.svc.Permissions.Create(f.Id, perm).
			SupportsAllDrives(true).
			Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("grant public read on %s: %w", f.Id, err)
		}
	}

	// Ownership grants are sequential: each transfer depends on who the
	// current owner is.
	for _, email := range u.desc.SharedEmails {
		perm := &drive.Permission{Type: "user", Role: "owner", EmailAddress: email}
		if _, err := u.svc.Permissions.Create(f.Id, perm).
			TransferOwnership(true).
			Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("share %s with %s: %w", f.Id, email, err)
		}
	}

	u.logger.Info().
		Str("file_id", f.Id).
		Int("bytes", len(data)).
		Bool("public", u.desc.IsPublic).
		Msg("artifact uploaded")

	storageURL := f.WebViewLink
	if storageURL == "" {
		storageURL = fmt.Sprintf("https://drive.google.com/file/d/%s/view", f.Id)
	}
	publicURL := f.WebContentLink
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://drive.google.com/uc?id=%s&export=download", f.Id)
	}

	return &Result{Provider: u.Provider(), StorageURL: storageURL, PublicURL: publicURL}, nil
}
