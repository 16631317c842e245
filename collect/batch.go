package collect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const (
	DefaultBatchEndpoint = "https://gmail.googleapis.com/batch/gmail/v1"
	messageFieldMask     = "id,threadId,labelIds,snippet,internalDate,payload/headers"
)

// BatchResult is the outcome of one sub-request of a batch call. Index is the
// position of the candidate in the submitted slice.
type BatchResult struct {
	Index   int
	Message *gmail.Message
	Err     error
}

// BatchClient sends metadata fetches for many messages as a single
// multipart/mixed request. The http client is expected to authorize requests.
type BatchClient struct {
	Client   *http.Client
	Endpoint string
	Logger   *slog.Logger
}

func NewBatchClient(client *http.Client) *BatchClient {
	return &BatchClient{Client: client, Endpoint: DefaultBatchEndpoint, Logger: slog.Default()}
}

// FetchMetadata returns one result per response part, in the order the parts
// arrive. A non-nil error means the batch as a whole failed.
func (b *BatchClient) FetchMetadata(ctx context.Context, candidates []Candidate) ([]BatchResult, error) {
	if len(candidates) == 0 {
		return []BatchResult{}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, c := range candidates {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-Transfer-Encoding", "binary")
		header.Set("Content-ID", fmt.Sprintf("<item-%d>", i))
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to build batch part for message %s: %w", c.ID, err)
		}
		fmt.Fprintf(part, "GET %s HTTP/1.1\r\n\r\n", messagePath(c.ID))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch request: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("batch request rejected: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected batch content type: %s", contentType)
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	results := make([]BatchResult, 0, len(candidates))
	for position := 0; ; position++ {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read batch response: %w", err)
		}
		index := partIndex(part.Header.Get("Content-ID"), position)
		result := b.readPart(part, index)
		part.Close()
		if index < 0 || index >= len(candidates) {
			b.Logger.Warn("Dropping batch part with unknown index", "content_id", part.Header.Get("Content-ID"))
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (b *BatchClient) readPart(part *multipart.Part, index int) BatchResult {
	result := BatchResult{Index: index}
	partResp, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		result.Err = fmt.Errorf("failed to parse batch part %d: %w", index, err)
		return result
	}
	defer partResp.Body.Close()

	if err := googleapi.CheckResponse(partResp); err != nil {
		result.Err = err
		return result
	}

	var msg gmail.Message
	if err := json.NewDecoder(partResp.Body).Decode(&msg); err != nil {
		result.Err = fmt.Errorf("failed to decode message in batch part %d: %w", index, err)
		return result
	}
	result.Message = &msg
	return result
}

func messagePath(id string) string {
	q := url.Values{}
	q.Set("format", "metadata")
	q.Set("fields", messageFieldMask)
	for _, h := range MetadataHeaders {
		q.Add("metadataHeaders", h)
	}
	return "/gmail/v1/users/me/messages/" + url.PathEscape(id) + "?" + q.Encode()
}

// partIndex recovers the submission index from a response Content-ID such as
// "<response-item-3>". Falls back to the part position.
func partIndex(contentID string, position int) int {
	id := strings.Trim(contentID, "<> ")
	if i := strings.LastIndexAny(id, "-+"); i >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(id[i+1:])); err == nil {
			return n
		}
	}
	return position
}
