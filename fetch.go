package main

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

const externalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}

const maxFetchBody = 2 << 20

// FetchCatalogFromURL downloads a web page and imports the first <table> it
// contains as catalog entries. A page without a table yields an empty
// import, not an error.
func FetchCatalogFromURL(url string, gen IDGenerator) ([]FunctionEntry, error) {
	resp, err := externalHTTPClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	records, err := ParseHTMLTable(body)
	if err != nil {
		return nil, err
	}
	return NormalizeRecords(records, gen), nil
}
