package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// driveFixture fakes the two Drive endpoints the uploader touches and
// records what it was asked to do.
type driveFixture struct {
	fileJSON string

	uploadedMeta *drive.File
	permissions  []recordedPermission
}

type recordedPermission struct {
	Type              string
	Role              string
	Email             string
	TransferOwnership string
}

func (f *driveFixture) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/upload/"):
			f.uploadedMeta = decodeMultipartMeta(t, r)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, f.fileJSON)
		case strings.Contains(r.URL.Path, "/permissions"):
			var p drive.Permission
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			f.permissions = append(f.permissions, recordedPermission{
				Type:              p.Type,
				Role:              p.Role,
				Email:             p.EmailAddress,
				TransferOwnership: r.URL.Query().Get("transferOwnership"),
			})
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"perm1"}`)
		default:
			http.NotFound(w, r)
		}
	})
}

// decodeMultipartMeta pulls the metadata part out of a multipart media
// upload request.
func decodeMultipartMeta(t *testing.T, r *http.Request) *drive.File {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mediaType, "multipart/"), "expected multipart upload, got %s", mediaType)

	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	require.NoError(t, err)

	var meta drive.File
	require.NoError(t, json.NewDecoder(part).Decode(&meta))
	return &meta
}

func newFixtureUploader(t *testing.T, fixture *driveFixture, desc *ManagedDrive) *driveUploader {
	t.Helper()
	srv := httptest.NewServer(fixture.handler(t))
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL))
	require.NoError(t, err)

	return newDriveUploaderFromService(svc, desc, zerolog.Nop())
}

func TestDriveUploader_PrivateUpload(t *testing.T) {
	fixture := &driveFixture{
		fileJSON: `{"id":"file123","webViewLink":"https://drive.google.com/file/d/file123/view","webContentLink":"https://drive.google.com/uc?id=file123&export=download"}`,
	}
	u := newFixtureUploader(t, fixture, &ManagedDrive{})

	res, err := u.Upload(context.Background(), artifactData, "backup-20240309T143005-orders.dump")
	require.NoError(t, err)

	require.NotNil(t, fixture.uploadedMeta)
	assert.Equal(t, "backup-20240309T143005-orders.dump", fixture.uploadedMeta.Name)
	assert.Empty(t, fixture.uploadedMeta.Parents)
	assert.Empty(t, fixture.permissions, "private upload must not touch sharing")

	assert.Equal(t, "google_drive", res.Provider)
	assert.Equal(t, "https://drive.google.com/file/d/file123/view", res.StorageURL)
	assert.Equal(t, "https://drive.google.com/uc?id=file123&export=download", res.PublicURL)
}

func TestDriveUploader_TargetsFolder(t *testing.T) {
	fixture := &driveFixture{fileJSON: `{"id":"file123"}`}
	u := newFixtureUploader(t, fixture, &ManagedDrive{FolderID: "folder-7"})

	_, err := u.Upload(context.Background(), artifactData, "x.dump")
	require.NoError(t, err)

	require.NotNil(t, fixture.uploadedMeta)
	assert.Equal(t, []string{"folder-7"}, fixture.uploadedMeta.Parents)
}

func TestDriveUploader_PublicAndSharedGrants(t *testing.T) {
	fixture := &driveFixture{fileJSON: `{"id":"file123"}`}
	u := newFixtureUploader(t, fixture, &ManagedDrive{
		IsPublic:     true,
		SharedEmails: []string{"ops@example.com", "dba@example.com"},
	})

	_, err := u.Upload(context.Background(), artifactData, "x.dump")
	require.NoError(t, err)

	require.Len(t, fixture.permissions, 3)

	assert.Equal(t, recordedPermission{Type: "anyone", Role: "reader"}, fixture.permissions[0])
	assert.Equal(t, recordedPermission{
		Type: "user", Role: "owner", Email: "ops@example.com", TransferOwnership: "true",
	}, fixture.permissions[1])
	assert.Equal(t, recordedPermission{
		Type: "user", Role: "owner", Email: "dba@example.com", TransferOwnership: "true",
	}, fixture.permissions[2])
}

func TestDriveUploader_SynthesizesURLsWhenLinksMissing(t *testing.T) {
	fixture := &driveFixture{fileJSON: `{"id":"file123"}`}
	u := newFixtureUploader(t, fixture, &ManagedDrive{})

	res, err := u.Upload(context.Background(), artifactData, "x.dump")
	require.NoError(t, err)

	assert.Equal(t, "https://drive.google.com/file/d/file123/view", res.StorageURL)
	assert.Equal(t, "https://drive.google.com/uc?id=file123&export=download", res.PublicURL)
}

func TestDriveUploader_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL))
	require.NoError(t, err)

	u := newDriveUploaderFromService(svc, &ManagedDrive{}, zerolog.Nop())

	_, err = u.Upload(context.Background(), artifactData, "x.dump")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to drive")
}
