// Package routing talks to an OSRM-compatible walking-route service and
// caches route answers in Redis.
package routing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

var (
	ErrNoRoute     = errors.New("no route found")
	ErrUnavailable = errors.New("routing service unavailable")
)

type Client struct {
	baseURL string
	http    *http.Client
	rdb     *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

func NewClient(logger *slog.Logger, rdb *redis.Client, baseURL string, timeout, ttl time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
	}
}

// CacheKey hashes the coordinate pair rounded to 5 decimals (~1 m).
func CacheKey(start, end highlander.Coordinates) string {
	data := fmt.Sprintf("%.5f,%.5f-%.5f,%.5f", start.Latitude, start.Longitude, end.Latitude, end.Longitude)
	sum := md5.Sum([]byte(data))
	return "cache:route:" + hex.EncodeToString(sum[:])
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64               `json:"distance"`
		Duration float64               `json:"duration"`
		Geometry highlander.LineString `json:"geometry"`
	} `json:"routes"`
}

type osrmNearestResponse struct {
	Code      string            `json:"code"`
	Waypoints []json.RawMessage `json:"waypoints"`
}

// Route returns the walking route from start to end. Oracle failures are
// returned to the caller, not retried.
func (c *Client) Route(ctx context.Context, start, end highlander.Coordinates) (highlander.Route, error) {
	key := CacheKey(start, end)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var r highlander.Route
		if err := json.Unmarshal(cached, &r); err == nil {
			return r, nil
		}
		c.logger.Warn("discarding malformed cached route", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("route cache read failed", "key", key, "error", err)
	}

	url := fmt.Sprintf("%s/route/v1/foot/%s;%s?overview=full&geometries=geojson",
		c.baseURL, lngLat(start), lngLat(end))

	var body osrmRouteResponse
	status, err := c.getJSON(ctx, url, &body)
	if err != nil {
		return highlander.Route{}, fmt.Errorf("requesting route: %w", err)
	}
	if status != http.StatusOK {
		return highlander.Route{}, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return highlander.Route{}, ErrNoRoute
	}

	first := body.Routes[0]
	route := highlander.Route{
		Distance: first.Distance,
		Duration: first.Duration,
		Geometry: first.Geometry,
	}

	if data, err := json.Marshal(route); err == nil {
		if err := c.rdb.SetEx(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("route cache write failed", "key", key, "error", err)
		}
	}
	return route, nil
}

// IsRoutable reports whether the oracle can snap p to a walkable segment.
// Every failure mode yields false.
func (c *Client) IsRoutable(ctx context.Context, p highlander.Coordinates) bool {
	var body osrmNearestResponse
	status, err := c.getJSON(ctx, fmt.Sprintf("%s/nearest/v1/foot/%s", c.baseURL, lngLat(p)), &body)
	if err != nil {
		c.logger.Debug("nearest lookup failed", "error", err)
		return false
	}
	return status == http.StatusOK && body.Code == "Ok" && len(body.Waypoints) > 0
}

// Check reports whether the oracle answers HTTP at all.
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nearest/v1/foot/0,0", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// getJSON decodes a 200 body into dst and returns the status code.
func (c *Client) getJSON(ctx context.Context, url string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

func lngLat(c highlander.Coordinates) string {
	return strconv.FormatFloat(c.Longitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Latitude, 'f', -1, 64)
}
