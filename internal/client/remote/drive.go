package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

const (
	DefaultDriveBaseURL = "https://www.googleapis.com"

	driveFolderMime = "application/vnd.google-apps.folder"
	driveFileMime   = "application/json"
	driveAppData    = "appDataFolder"
	driveFileFields = "id,name,modifiedTime,mimeType"
)

// DriveOptions configures NewDriveStore.
type DriveOptions struct {
	// BaseURL is the API host; tests point it at an httptest server.
	BaseURL string
	// FolderName is the root-level folder used for the visible location.
	FolderName string
	HTTPClient *http.Client
}

// DriveStore implements Store on the Google Drive v3 REST API. The hidden
// location is the per-app appDataFolder space, the visible one a folder in
// the user's drive root.
type DriveStore struct {
	baseURL    string
	token      string
	folderName string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu       sync.Mutex
	folderID string
}

func NewDriveStore(token string, opts DriveOptions) *DriveStore {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultDriveBaseURL
	}
	folder := strings.TrimSpace(opts.FolderName)
	if folder == "" {
		folder = "NoteSync"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &DriveStore{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		folderName: folder,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// NewDriveFactory returns a Factory that builds a DriveStore per access
// token.
func NewDriveFactory(opts DriveOptions) Factory {
	return func(_ context.Context, cred models.Credential) (Store, error) {
		if cred.AccessToken == "" {
			return nil, errors.New("drive: access token is required")
		}
		return NewDriveStore(cred.AccessToken, opts), nil
	}
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
}

func (f driveFile) remote(loc models.StorageLocation) models.RemoteFile {
	mod, _ := time.Parse(time.RFC3339Nano, f.ModifiedTime)
	return models.RemoteFile{ID: f.ID, Name: f.Name, ModifiedTime: mod, Location: loc}
}

type driveFileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

func (d *DriveStore) FindByName(ctx context.Context, name string, loc models.StorageLocation) ([]models.RemoteFile, error) {
	terms := []string{
		fmt.Sprintf("name='%s'", escapeQuery(name)),
		fmt.Sprintf("mimeType='%s'", driveFileMime),
		"trashed=false",
	}

	q := url.Values{}
	switch loc {
	case models.LocationHidden:
		q.Set("spaces", driveAppData)
	case models.LocationVisible:
		folderID, err := d.findFolder(ctx, d.folderName)
		if err != nil {
			return nil, classify(err)
		}
		if folderID == "" {
			return nil, nil
		}
		terms = append(terms, fmt.Sprintf("'%s' in parents", escapeQuery(folderID)))
	default:
		return nil, fmt.Errorf("drive: cannot search location %q", loc)
	}
	q.Set("q", strings.Join(terms, " and "))
	q.Set("fields", "nextPageToken,files("+driveFileFields+")")

	var out []models.RemoteFile
	for {
		var page driveFileList
		if err := d.doJSON(ctx, http.MethodGet, "/drive/v3/files?"+q.Encode(), nil, &page); err != nil {
			return nil, classify(err)
		}
		for _, f := range page.Files {
			// the query is advisory; keep only exact matches
			if f.Name != name || f.MimeType != driveFileMime {
				continue
			}
			out = append(out, f.remote(loc))
		}
		if page.NextPageToken == "" {
			break
		}
		q.Set("pageToken", page.NextPageToken)
	}

	SortNewestFirst(out)
	return out, nil
}

func (d *DriveStore) GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error) {
	q := url.Values{}
	q.Set("fields", driveFileFields)
	q.Set("supportsAllDrives", "true")

	var f driveFile
	err := d.doJSON(ctx, http.MethodGet, "/drive/v3/files/"+url.PathEscape(id)+"?"+q.Encode(), nil, &f)
	if code := StatusCode(err); code == http.StatusForbidden || code == http.StatusBadRequest {
		// files in appDataFolder sometimes need the space spelled out
		q.Set("spaces", driveAppData)
		err = d.doJSON(ctx, http.MethodGet, "/drive/v3/files/"+url.PathEscape(id)+"?"+q.Encode(), nil, &f)
	}
	if err != nil {
		return nil, classify(err)
	}

	rf := f.remote(models.LocationUnset)
	return &rf, nil
}

func (d *DriveStore) Download(ctx context.Context, id string) ([]byte, error) {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("supportsAllDrives", "true")

	body, err := d.do(ctx, http.MethodGet, "/drive/v3/files/"+url.PathEscape(id)+"?"+q.Encode(), "", nil)
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

func (d *DriveStore) Upload(ctx context.Context, name string, content []byte, targetID string, loc models.StorageLocation) (models.RemoteFile, error) {
	meta := map[string]any{"name": name, "mimeType": driveFileMime}

	method := http.MethodPatch
	path := "/upload/drive/v3/files/" + url.PathEscape(targetID)
	if targetID == "" {
		method = http.MethodPost
		path = "/upload/drive/v3/files"
		switch loc {
		case models.LocationHidden:
			meta["parents"] = []string{driveAppData}
		case models.LocationVisible:
			folderID, err := d.EnsureFolder(ctx, d.folderName)
			if err != nil {
				return models.RemoteFile{}, err
			}
			meta["parents"] = []string{folderID}
		default:
			return models.RemoteFile{}, fmt.Errorf("drive: cannot create a file in location %q", loc)
		}
	}

	body, contentType, err := multipartBody(meta, content)
	if err != nil {
		return models.RemoteFile{}, err
	}

	q := url.Values{}
	q.Set("uploadType", "multipart")
	q.Set("supportsAllDrives", "true")
	q.Set("fields", driveFileFields)

	payload, err := d.do(ctx, method, path+"?"+q.Encode(), contentType, body)
	if err != nil {
		return models.RemoteFile{}, classify(err)
	}

	var f driveFile
	if err := json.Unmarshal(payload, &f); err != nil {
		return models.RemoteFile{}, fmt.Errorf("drive: decode upload response: %w", err)
	}
	return f.remote(loc), nil
}

func (d *DriveStore) EnsureFolder(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	cached := d.folderID
	d.mu.Unlock()
	if cached != "" && name == d.folderName {
		return cached, nil
	}

	id, err := d.findFolder(ctx, name)
	if err != nil {
		return "", classify(err)
	}
	if id == "" {
		body, err := json.Marshal(map[string]any{
			"name":     name,
			"mimeType": driveFolderMime,
			"parents":  []string{"root"},
		})
		if err != nil {
			return "", err
		}
		var created driveFile
		payload, err := d.do(ctx, http.MethodPost, "/drive/v3/files?fields=id", "application/json", body)
		if err != nil {
			return "", classify(err)
		}
		if err := json.Unmarshal(payload, &created); err != nil {
			return "", fmt.Errorf("drive: decode folder response: %w", err)
		}
		id = created.ID
	}

	if name == d.folderName {
		d.mu.Lock()
		d.folderID = id
		d.mu.Unlock()
	}
	return id, nil
}

// findFolder returns "" when no folder called name exists in the root.
func (d *DriveStore) findFolder(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	cached := d.folderID
	d.mu.Unlock()
	if cached != "" && name == d.folderName {
		return cached, nil
	}

	q := url.Values{}
	q.Set("q", strings.Join([]string{
		fmt.Sprintf("name='%s'", escapeQuery(name)),
		fmt.Sprintf("mimeType='%s'", driveFolderMime),
		"'root' in parents",
		"trashed=false",
	}, " and "))
	q.Set("fields", "files(id,name)")

	var list driveFileList
	if err := d.doJSON(ctx, http.MethodGet, "/drive/v3/files?"+q.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

func (d *DriveStore) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	contentType := ""
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
		contentType = "application/json"
	}
	payload, err := d.do(ctx, method, requestPath, contentType, bodyBytes)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// do sends one request, retrying transport errors, 429 and 5xx with
// exponential backoff. Non-2xx answers come back as *HTTPError.
func (d *DriveStore) do(ctx context.Context, method, requestPath, contentType string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, d.baseURL+requestPath, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+d.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			if attempt < d.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, d.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < d.maxRetries {
			if waitErr := waitWithContext(ctx, d.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, driveError(resp.StatusCode, payload)
	}
}

func driveError(status int, payload []byte) *HTTPError {
	var errPayload struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &errPayload)

	he := &HTTPError{StatusCode: status, Message: errPayload.Error.Message}
	if len(errPayload.Error.Errors) > 0 {
		he.Code = errPayload.Error.Errors[0].Reason
	}
	if he.Message == "" {
		he.Message = http.StatusText(status)
	}
	return he
}

// multipartBody builds a multipart/related body: JSON metadata first, then
// the media.
func multipartBody(meta map[string]any, content []byte) ([]byte, string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(metaJSON); err != nil {
		return nil, "", err
	}

	part, err = w.CreatePart(textproto.MIMEHeader{"Content-Type": {driveFileMime}})
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (d *DriveStore) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := d.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := d.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return time.Until(at)
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
