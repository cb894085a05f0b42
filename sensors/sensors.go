// Package sensors reads temperatures and exchange rates. Each reader is a
// publish.Action producing one value per configured device.
package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Device maps a hardware id or URL to the name it is published under.
// Key selects a field in the device's response where that is needed.
type Device struct {
	ID   string
	Name string
	Key  string
}

func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, hv := range vs {
			req.Header.Add(k, hv)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code from %s: %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
