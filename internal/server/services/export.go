package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/accountkeeper/internal/netx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/storage"
)

const (
	exportContentType = "text/csv"
	exportURLValidity = 15 * time.Minute
)

var exportHeader = []string{
	"id", "name", "email", "role", "active", "failed_login_count",
	"locked_until", "last_access_at", "created_at",
}

type ExportService struct {
	Deps
	presigner storage.Presigner
	client    *http.Client
}

func NewExportService(d Deps, p storage.Presigner, client *http.Client) *ExportService {
	return &ExportService{Deps: d.withDefaults("export"), presigner: p, client: client}
}

// ExportKey is the object key of an export created at t.
func ExportKey(t time.Time) string {
	return fmt.Sprintf("exports/%04d/%02d/%02d/%s.csv", t.Year(), t.Month(), t.Day(), uuid.New())
}

// ExportAccounts writes every account to CSV, uploads it through a presigned
// PUT and returns a presigned GET URL valid for 15 minutes. Credential hashes
// are never exported.
func (s *ExportService) ExportAccounts(ctx context.Context) (string, error) {
	list, err := s.RepoManager.Accounts(s.DB).List(ctx)
	if err != nil {
		return "", err
	}

	body, err := accountsCSV(list)
	if err != nil {
		return "", fmt.Errorf("encode csv: %w", err)
	}

	key := ExportKey(s.Clock.Now())

	putURL, err := s.presigner.PresignPut(ctx, key, exportContentType, exportURLValidity)
	if err != nil {
		return "", err
	}
	if err := netx.UploadToPresignedURL(ctx, s.client, putURL, exportContentType, body); err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	getURL, err := s.presigner.PresignGet(ctx, key, exportURLValidity)
	if err != nil {
		return "", err
	}

	s.Logger.Info(ctx, "accounts exported", "key", key, "rows", len(list))
	return getURL, nil
}

func accountsCSV(list []models.Account) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, a := range list {
		rec := []string{
			a.ID,
			a.Name,
			a.Email,
			a.Role.Name,
			strconv.FormatBool(a.Active),
			strconv.Itoa(a.FailedLoginCount),
			formatTime(a.LockedUntil),
			formatTime(a.LastAccessAt),
			a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
