package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/offerlab/deployman/internal/shell/api"
)

// =============================================================================
// HTTP Helpers
// =============================================================================

var httpClient = &http.Client{Timeout: 30 * time.Second}

func apiURL(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

// doJSON performs a request with an optional JSON body and decodes the
// response into out. Non-2xx responses come back as an error carrying the
// server's message; the status code is returned either way.
func doJSON(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL(path), reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s", apiErr.Error)
		}
		return resp.StatusCode, fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// =============================================================================
// Output Helpers
// =============================================================================

// parseParams turns repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// describeBuild renders the record's build id for humans.
func describeBuild(id int) string {
	switch {
	case id > 0:
		return strconv.Itoa(id)
	case id < 0:
		return "rejected"
	default:
		return "not submitted"
	}
}

// printDeployment writes a human-readable view of the record. Status words
// are stored lowercase; title-case them for display.
func printDeployment(w io.Writer, d api.DeploymentResponse) {
	titler := cases.Title(language.English)

	fmt.Fprintf(w, "Type:   %s\n", d.Definition.DeploymentType)
	fmt.Fprintf(w, "Build:  %s\n", describeBuild(d.ID))
	fmt.Fprintf(w, "Status: %s\n", titler.String(d.Status))

	if len(d.Definition.Parameters) > 0 {
		keys := make([]string, 0, len(d.Definition.Parameters))
		for key := range d.Definition.Parameters {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "Parameters:")
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %v\n", key, d.Definition.Parameters[key])
		}
	}
}
