package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/backupkeeper/internal/config"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	opt, err := gdriveClientOption(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func gdriveClientOption(ctx context.Context, cfg *config.UploadTarget) (option.ClientOption, error) {
	if cfg.ClientSecretFile == "" {
		if cfg.CredentialsFile == "" {
			return nil, errors.New("gdrive: credentials_file or client_secret_file is required")
		}
		return option.WithCredentialsFile(cfg.CredentialsFile), nil
	}

	if cfg.RefreshToken == "" {
		return nil, errors.New("gdrive: refresh_token is required with client_secret_file, run gdrive-auth first")
	}
	b, err := os.ReadFile(cfg.ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return option.WithTokenSource(ts), nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{
		Name:    remoteName,
		Parents: []string{g.folderID},
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

// Delete removes every file named remoteName in the folder. A missing file
// is not an error.
func (g *GDriveStorage) Delete(ctx context.Context, remoteName string) error {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false",
		g.folderID, strings.ReplaceAll(remoteName, "'", "\\'"))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}

	for _, f := range fileList.Files {
		if err := g.service.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}

	return nil
}
