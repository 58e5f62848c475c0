// File: internal/provider/httpapi.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// maxFetchBytes caps how much a fetch will read
const maxFetchBytes = 32 << 20

// addResponse is the /api/v0/add reply shared by IPFS and Lighthouse
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// postMultipart uploads data as the "file" form field and decodes the add reply
func postMultipart(ctx context.Context, client *http.Client, url, name string, data []byte,
	authorize func(*http.Request)) (*UploadResult, error) {

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build upload form", err.Error())
	}
	if _, err := part.Write(data); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build upload form", err.Error())
	}
	if err := writer.Close(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build upload form", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to create upload request", err.Error())
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if authorize != nil {
		authorize(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Upload request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, utils.NewAppError(utils.ErrCodeProvider,
			fmt.Sprintf("Upload rejected with status %d", resp.StatusCode), string(msg))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to decode upload response", err.Error())
	}
	if added.Hash == "" {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Upload response carried no CID", "")
	}

	size, err := strconv.ParseInt(added.Size, 10, 64)
	if err != nil {
		size = int64(len(data))
	}

	return &UploadResult{Name: added.Name, CID: added.Hash, Size: size}, nil
}

// readBody fetches url and returns the body of a 2xx reply
func readBody(ctx context.Context, client *http.Client, method, url string,
	authorize func(*http.Request)) ([]byte, error) {

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to create fetch request", err.Error())
	}
	if authorize != nil {
		authorize(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Fetch request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Content not found", url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.NewAppError(utils.ErrCodeProvider,
			fmt.Sprintf("Fetch failed with status %d", resp.StatusCode), url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to read content", err.Error())
	}
	return data, nil
}
