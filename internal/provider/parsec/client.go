// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package parsec fetches PARSEC isochrone tracks from a CMD web form server
// one (log-age, [M/H]) pair at a time.
package parsec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastrand"

	"github.com/mlnoga/isogrid/internal/track"
)

const (
	DefaultBaseURL         = "http://stev.oapd.inaf.it/cgi-bin/cmd_3.7"
	DefaultPhotSysTemplate = "YBC_tab_mag_odfnew/tab_mag_%s.dat"
)

// Link to the generated output table in the form response
var reOutput = regexp.MustCompile(`output\d+\.dat`)

// Error message in the form response, if the server rejected the request
var reFormError = regexp.MustCompile(`(?is)<p[^>]*class="errorwarning"[^>]*>(.*?)</p>`)

// Client for a CMD web form server. Safe for concurrent use.
type Client struct {
	BaseURL         string             // form URL; output tables are resolved relative to it under ../tmp/
	PhotSysTemplate string             // format for the photsys_file form field, %s is the photometric system
	MassColumn      string             // name of the initial mass column in output tables
	Retries         int                // extra attempts on transient failures
	Backoff         time.Duration      // base delay before the first retry, doubled per attempt
	HTTP            *http.Client       // http client, http.DefaultClient if nil
	Log             logrus.FieldLogger // receives retry diagnostics, may be nil
}

// Creates a client for the given base URL with default settings
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:         baseURL,
		PhotSysTemplate: DefaultPhotSysTemplate,
		MassColumn:      DefaultMassColumn,
		Retries:         2,
		Backoff:         2 * time.Second,
		HTTP:            &http.Client{Timeout: 5 * time.Minute},
	}
}

// Marks errors that should not be retried
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Fetches the isochrone for a single (log-age, [M/H]) pair
func (c *Client) FetchTrack(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			if c.Log != nil {
				c.Log.WithFields(logrus.Fields{"logage": logAge, "feh": feh, "attempt": attempt}).
					Debugf("retrying in %v after: %s", delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		t, err := c.fetchOnce(ctx, logAge, feh, photSys)
		if err == nil {
			return t, nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Wrapf(lastErr, "fetching isochrone logAge=%g [M/H]=%g", logAge, feh)
}

// Exponential backoff with up to 50% random jitter
func (c *Client) backoff(attempt int) time.Duration {
	d := c.Backoff << uint(attempt-1)
	half := d / 2
	if half > math.MaxUint32 {
		half = math.MaxUint32
	}
	if half > 0 {
		d += time.Duration(fastrand.Uint32n(uint32(half)))
	}
	return d
}

func (c *Client) fetchOnce(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
	page, err := c.do(ctx, http.MethodPost, c.BaseURL, c.formValues(logAge, feh, photSys))
	if err != nil {
		return nil, err
	}
	name := reOutput.FindString(string(page))
	if name == "" {
		msg := "no output table in response"
		if m := reFormError.FindSubmatch(page); m != nil {
			msg = strings.TrimSpace(stripTags(string(m[1])))
		}
		return nil, &permanentError{errors.New(msg)}
	}

	tableURL, err := c.resolve("../tmp/" + name)
	if err != nil {
		return nil, &permanentError{err}
	}
	table, err := c.do(ctx, http.MethodGet, tableURL, nil)
	if err != nil {
		return nil, err
	}
	t, err := ParseTable(bytes.NewReader(table), c.massColumn(), feh, logAge)
	if err != nil {
		return nil, &permanentError{err}
	}
	return t, nil
}

func (c *Client) massColumn() string {
	if c.MassColumn == "" {
		return DefaultMassColumn
	}
	return c.MassColumn
}

func (c *Client) formValues(logAge, feh float64, photSys string) url.Values {
	la := strconv.FormatFloat(logAge, 'g', -1, 64)
	mh := strconv.FormatFloat(feh, 'g', -1, 64)
	template := c.PhotSysTemplate
	if template == "" {
		template = DefaultPhotSysTemplate
	}
	return url.Values{
		"cmd_version":     {"3.7"},
		"track_parsec":    {"parsec_CAF09_v1.2S"},
		"track_colibri":   {"parsec_CAF09_v1.2S_S_LMC_08_web"},
		"track_postagb":   {"no"},
		"photsys_file":    {fmt.Sprintf(template, photSys)},
		"photsys_version": {"YBCnewVega"},
		"kind_mag":        {"2"},
		"kind_dust":       {"0"},
		"extinction_av":   {"0.0"},
		"imf_file":        {"tab_imf/imf_kroupa_orig.dat"},
		"isoc_isagelog":   {"1"},
		"isoc_lagelow":    {la},
		"isoc_lageupp":    {la},
		"isoc_dlage":      {"0.0"},
		"isoc_ismetlog":   {"1"},
		"isoc_metlow":     {mh},
		"isoc_metupp":     {mh},
		"isoc_dmet":       {"0.0"},
		"output_kind":     {"0"},
		"output_evstage":  {"1"},
		"submit_form":     {"Submit"},
	}
}

func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing base URL")
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

// Performs one request. Server errors and transport failures are transient,
// client errors are permanent.
func (c *Client) do(ctx context.Context, method, target string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &permanentError{err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, errors.Errorf("%s %s: %s", method, target, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return nil, &permanentError{errors.Errorf("%s %s: %s", method, target, resp.Status)}
	}
	return data, nil
}

var reTag = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return reTag.ReplaceAllString(s, "")
}
