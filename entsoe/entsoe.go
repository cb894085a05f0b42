package entsoe

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/angas/spotprice/convert"
	"github.com/angas/spotprice/types"
)

const (
	DefaultBaseURL = "https://web-api.tp.entsoe.eu"
	periodLayout   = "200601021504"
	intervalLayout = "2006-01-02T15:04Z"
)

var ErrMissingToken = errors.New("missing ENTSO-E security token")

// Entsoe reads day-ahead prices (document type A44) from the ENTSO-E
// transparency platform. Prices are EUR/MWh and returned in cent/kWh.
type Entsoe struct {
	domain  string
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New accepts a known area name like SE3 or a raw EIC code.
func New(area string, token string, baseURL string) (*Entsoe, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	domain, ok := areaCodes[strings.ToUpper(area)]
	if !ok {
		if !strings.HasPrefix(area, "10Y") {
			return nil, fmt.Errorf("unknown bidding zone %q", area)
		}
		domain = area
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Entsoe{
		domain:  domain,
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		logger:  slog.Default().With("module", "entsoe"),
	}, nil
}

func (e *Entsoe) Name() string {
	return "entsoe"
}

func (e *Entsoe) Currency() string {
	return "EUR"
}

// Fetch makes one request covering the whole window.
func (e *Entsoe) Fetch(ctx context.Context, w types.Window) (types.PriceSeries, error) {
	q := url.Values{}
	q.Set("documentType", "A44")
	q.Set("in_Domain", e.domain)
	q.Set("out_Domain", e.domain)
	q.Set("periodStart", w.From.UTC().Format(periodLayout))
	q.Set("periodEnd", w.To.UTC().Format(periodLayout))
	q.Set("securityToken", e.token)

	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/api?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		// The url carries the token, keep it out of the logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	var doc document
	decodeErr := xml.NewDecoder(resp.Body).Decode(&doc)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d%s", resp.StatusCode, doc.reason())
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if doc.XMLName.Local == "Acknowledgement_MarketDocument" {
		e.logger.Debug("no prices available", slog.String("reason", strings.TrimPrefix(doc.reason(), ": ")))
		return types.PriceSeries{}, nil
	}

	var points []types.PricePoint
	for _, ts := range doc.TimeSeries {
		for _, p := range ts.Periods {
			expanded, err := p.expand()
			if err != nil {
				return nil, err
			}
			for _, pp := range expanded {
				if w.Contains(pp.Time) {
					points = append(points, pp)
				}
			}
		}
	}
	return types.NewPriceSeries(points), nil
}

func (d document) reason() string {
	texts := make([]string, 0, len(d.Reason))
	for _, r := range d.Reason {
		texts = append(texts, r.Text)
	}
	if len(texts) == 0 {
		return ""
	}
	return ": " + strings.Join(texts, "; ")
}

func resolution(s string) (time.Duration, error) {
	switch s {
	case "PT60M", "PT1H":
		return time.Hour, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT15M":
		return 15 * time.Minute, nil
	}
	return 0, fmt.Errorf("unsupported resolution %q", s)
}

// expand turns a period into one point per resolution step. Positions left
// out by the document repeat the previous price.
func (p period) expand() ([]types.PricePoint, error) {
	start, err := time.Parse(intervalLayout, p.TimeInterval.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid period start: %w", err)
	}
	end, err := time.Parse(intervalLayout, p.TimeInterval.End)
	if err != nil {
		return nil, fmt.Errorf("invalid period end: %w", err)
	}
	step, err := resolution(p.Resolution)
	if err != nil {
		return nil, err
	}
	if len(p.Points) == 0 {
		return nil, nil
	}

	pts := slices.Clone(p.Points)
	slices.SortFunc(pts, func(a, b point) int { return a.Position - b.Position })

	n := int(end.Sub(start) / step)
	out := make([]types.PricePoint, 0, n)
	next := 0
	price := pts[0].Price
	for pos := 1; pos <= n; pos++ {
		for next < len(pts) && pts[next].Position <= pos {
			price = pts[next].Price
			next++
		}
		if pos < pts[0].Position {
			continue
		}
		out = append(out, types.PricePoint{
			Time:  start.Add(time.Duration(pos-1) * step),
			Price: convert.MWh2Kwh(price),
		})
	}
	return out, nil
}
