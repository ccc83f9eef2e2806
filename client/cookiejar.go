package traderepublic

import (
	"net/http"
	"strings"
	"time"
)

// StoredCookie is a single parsed Set-Cookie entry.
type StoredCookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	Expires time.Time
}

// CookieJar holds the cookies issued by the most recent 2FA verification or
// session refresh. Unlike http.CookieJar it is scoped to a single host and
// replaced wholesale on refresh, matching the design's "replaced wholesale if
// refresh returns new set" lifecycle.
type CookieJar struct {
	apiHost string
	cookies []StoredCookie
}

// NewCookieJar creates a jar that only ever sends cookies whose domain ends
// with apiHost.
func NewCookieJar(apiHost string) *CookieJar {
	return &CookieJar{apiHost: apiHost}
}

// ParseSetCookies reads every Set-Cookie header off resp and replaces the
// jar's contents. It returns the number of cookies stored.
func (j *CookieJar) ParseSetCookies(resp *http.Response) int {
	headers := resp.Header.Values("Set-Cookie")
	if len(headers) == 0 {
		return 0
	}

	parsed := make([]StoredCookie, 0, len(headers))
	for _, header := range headers {
		if c, ok := j.parseOne(header); ok {
			parsed = append(parsed, c)
		}
	}

	j.cookies = parsed
	return len(parsed)
}

func (j *CookieJar) parseOne(header string) (StoredCookie, bool) {
	parts := strings.Split(header, ";")
	first := strings.TrimSpace(parts[0])

	eq := strings.IndexByte(first, '=')
	if eq <= 0 {
		return StoredCookie{}, false
	}
	name := first[:eq]
	value := first[eq+1:]
	if name == "" {
		return StoredCookie{}, false
	}

	c := StoredCookie{
		Name:   name,
		Value:  value,
		Domain: j.apiHost,
		Path:   "/",
	}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}

		key := attr
		val := ""
		if eq := strings.IndexByte(attr, '='); eq >= 0 {
			key = attr[:eq]
			val = attr[eq+1:]
		}

		switch strings.ToLower(key) {
		case "domain":
			c.Domain = strings.TrimPrefix(val, ".")
		case "path":
			if val != "" {
				c.Path = val
			}
		case "expires":
			if t, err := http.ParseTime(val); err == nil {
				c.Expires = t
			}
		}
	}

	return c, true
}

// Header renders the Cookie request header value from every stored cookie
// whose domain ends with the jar's API host.
func (j *CookieJar) Header() string {
	var parts []string
	for _, c := range j.cookies {
		if strings.HasSuffix(c.Domain, j.apiHost) {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether the jar currently holds no cookies.
func (j *CookieJar) Empty() bool {
	return len(j.cookies) == 0
}
