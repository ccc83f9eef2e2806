package traderepublic

import (
	"net/http"
	"strings"
	"testing"
)

func TestCookieJar_ParseSetCookies(t *testing.T) {
	jar := NewCookieJar("api.traderepublic.com")
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "tr_session=abc123; Domain=.traderepublic.com; Path=/; Secure; HttpOnly")
	resp.Header.Add("Set-Cookie", "tr_refresh=def456; Path=/")

	stored := jar.ParseSetCookies(resp)
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	// tr_session's domain "traderepublic.com" does not end with the API host,
	// so only tr_refresh (defaulted to the API host) is rendered.
	header := jar.Header()
	if strings.Contains(header, "tr_session=abc123") || !strings.Contains(header, "tr_refresh=def456") {
		t.Fatalf("header = %q, want only the cookie whose domain ends with the API host", header)
	}
}

func TestCookieJar_ParseSetCookiesReplacesWholesale(t *testing.T) {
	jar := NewCookieJar("api.traderepublic.com")
	first := &http.Response{Header: http.Header{}}
	first.Header.Add("Set-Cookie", "tr_session=old")
	jar.ParseSetCookies(first)

	second := &http.Response{Header: http.Header{}}
	second.Header.Add("Set-Cookie", "tr_session=new")
	jar.ParseSetCookies(second)

	header := jar.Header()
	if strings.Contains(header, "old") {
		t.Fatalf("expected old cookie replaced, header = %q", header)
	}
	if !strings.Contains(header, "tr_session=new") {
		t.Fatalf("expected new cookie present, header = %q", header)
	}
}

func TestCookieJar_NoSetCookieHeaderLeavesJarEmpty(t *testing.T) {
	jar := NewCookieJar("api.traderepublic.com")
	resp := &http.Response{Header: http.Header{}}
	stored := jar.ParseSetCookies(resp)
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
	if !jar.Empty() {
		t.Fatal("expected jar to remain empty")
	}
}

func TestCookieJar_RejectsMalformedCookie(t *testing.T) {
	jar := NewCookieJar("api.traderepublic.com")
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "=novalue")
	stored := jar.ParseSetCookies(resp)
	if stored != 0 {
		t.Fatalf("stored = %d, want 0 for malformed cookie with no name", stored)
	}
}
