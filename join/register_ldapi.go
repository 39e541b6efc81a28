// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pipjoin/spatial"
)

// LinkedDataRegister is an identifier register backed by a Linked Data
// API endpoint. Identifiers double as dereferenceable URLs: the point for
// a record is extracted from whatever representation its URL serves.
type LinkedDataRegister struct {
	endpoint string
	client   *http.Client
}

// NewLinkedDataRegister creates a register over the given listing
// endpoint. A nil client falls back to http.DefaultClient.
func NewLinkedDataRegister(endpoint string, client *http.Client) *LinkedDataRegister {
	if client == nil {
		client = http.DefaultClient
	}

	return &LinkedDataRegister{endpoint: endpoint, client: client}
}

// The register listing payload. Each item is an array whose first element
// is the record identifier.
type registerListing struct {
	RegisterItems [][]any `json:"register_items"`
}

func (r *LinkedDataRegister) getJSON(ctx context.Context, url string) (body []byte, header http.Header, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request <%s>: %w", url, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing resp.Body: %w", cerr))
		}
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, resp.Header, err
}

// GetIDs fetches one listing page. Continuation is signalled by the
// presence of a `next' relation in the Link response header, so no total
// record count is ever known.
func (r *LinkedDataRegister) GetIDs(ctx context.Context, page, pageSize int) (Page, error) {
	url := r.endpoint + "?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(pageSize)

	body, header, err := r.getJSON(ctx, url)
	if err != nil {
		return Page{}, &FetchIDBatchError{Page: page, Err: err}
	}

	var listing registerListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return Page{}, &FetchIDBatchError{Page: page, Err: fmt.Errorf("decoding listing: %w", err)}
	}

	ids := make([]string, 0, len(listing.RegisterItems))

	for i, item := range listing.RegisterItems {
		if len(item) == 0 {
			return Page{}, &FetchIDBatchError{Page: page, Err: fmt.Errorf("register item %d is empty", i)}
		}

		id, ok := item[0].(string)
		if !ok {
			return Page{}, &FetchIDBatchError{Page: page, Err: fmt.Errorf("register item %d: identifier is not a string", i)}
		}

		ids = append(ids, id)
	}

	return Page{IDs: ids, HasMore: hasNextLink(header.Values("Link"))}, nil
}

// GetPoint dereferences the identifier URL and extracts the embedded WKT
// point literal from the representation.
func (r *LinkedDataRegister) GetPoint(ctx context.Context, id string) (spatial.Point, error) {
	body, _, err := r.getJSON(ctx, id)
	if err != nil {
		return spatial.Point{}, &FetchPointError{ID: id, Err: err}
	}

	p, ok := spatial.FindPoint(string(body))
	if !ok {
		return spatial.Point{}, &FetchPointError{ID: id, Err: errors.New("no point literal in representation")}
	}

	return p, nil
}

// hasNextLink reports whether any RFC 8288 Link header value carries a
// `next' relation.
func hasNextLink(links []string) bool {
	for _, header := range links {
		for _, link := range strings.Split(header, ",") {
			for _, param := range strings.Split(link, ";")[1:] {
				k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(k, "rel") {
					continue
				}

				for _, rel := range strings.Fields(strings.Trim(v, `"`)) {
					if rel == "next" {
						return true
					}
				}
			}
		}
	}

	return false
}
