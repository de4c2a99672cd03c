package sources

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

const maxPDFBytes = 20 << 20

// fetchPDFText downloads a PDF and returns its plain text.
func fetchPDFText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "download pdf")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("download pdf: http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return "", errors.Wrap(err, "download pdf")
	}

	return readPDF(data)
}

func readPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "open pdf")
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "extract pdf text")
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", errors.Wrap(err, "extract pdf text")
	}
	return buf.String(), nil
}
