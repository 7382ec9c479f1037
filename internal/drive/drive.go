// Package drive archives closing artifacts to a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"

	"fechamento/internal/config"
	"fechamento/internal/log"
)

const (
	folderMIMEType = "application/vnd.google-apps.folder"
	xlsxMIMEType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Client struct {
	svc        *gdrive.Service
	folderName string
	folderID   string
	logger     *log.Logger
}

// NewFromConfig builds a Drive client from OAuth credentials in cfg.
// Inline JSON takes precedence over file paths for both the client
// config and the token.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client credentials: %w", err)
	}
	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(clientJSON, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	svc, err := gdrive.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Client{
		svc:        svc,
		folderName: cfg.DriveFolderName,
		logger:     logger.WithComponent(log.ComponentDrive),
	}, nil
}

func readCredential(inline, file string) ([]byte, error) {
	if inline = strings.TrimSpace(inline); inline != "" {
		return []byte(inline), nil
	}
	if file = strings.TrimSpace(file); file != "" {
		return os.ReadFile(file)
	}
	return nil, errors.New("no credential configured")
}

// UploadArtifact stores one report workbook in the archive folder and
// returns the Drive file ID. A file with the same name is updated in
// place so re-running a closing replaces its earlier upload.
func (c *Client) UploadArtifact(ctx context.Context, name string, content []byte) (string, error) {
	folderID, err := c.ensureFolder(ctx)
	if err != nil {
		return "", fmt.Errorf("ensure archive folder: %w", err)
	}

	existingID, err := c.findFile(ctx, name, folderID)
	if err != nil {
		return "", fmt.Errorf("look up existing file: %w", err)
	}

	if existingID != "" {
		updated, err := c.svc.Files.Update(existingID, &gdrive.File{}).
			Media(bytes.NewReader(content)).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("update file %q: %w", name, err)
		}
		c.logger.InfoContext(ctx, "Replaced archived artifact",
			log.FieldArtifact, name,
			log.FieldDriveFileID, updated.Id)
		return updated.Id, nil
	}

	created, err := c.svc.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: xlsxMIMEType,
		Parents:  []string{folderID},
	}).
		Media(bytes.NewReader(content)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", name, err)
	}

	c.logger.InfoContext(ctx, "Archived artifact",
		log.FieldArtifact, name,
		log.FieldDriveFileID, created.Id)
	return created.Id, nil
}

// ensureFolder finds the archive folder by name, creating it on first
// use. The resolved ID is cached for the lifetime of the client.
func (c *Client) ensureFolder(ctx context.Context) (string, error) {
	if c.folderID != "" {
		return c.folderID, nil
	}

	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(c.folderName), folderMIMEType)
	list, err := c.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("search folder: %w", err)
	}

	if len(list.Files) > 0 {
		c.folderID = list.Files[0].Id
		return c.folderID, nil
	}

	folder, err := c.svc.Files.Create(&gdrive.File{
		Name:     c.folderName,
		MimeType: folderMIMEType,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	c.logger.InfoContext(ctx, "Created archive folder",
		"folder", c.folderName,
		log.FieldDriveFileID, folder.Id)
	c.folderID = folder.Id
	return c.folderID, nil
}

func (c *Client) findFile(ctx context.Context, name, folderID string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderID)
	list, err := c.svc.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
