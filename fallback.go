package offlinecache

import (
	"bytes"
	"io"
	"net/http"
)

// fallbackHTML is the offline page shown when a navigation fails and no
// capture exists in the store. It must be completely self-contained.
const fallbackHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Cat Feeder &mdash; Offline</title>
<style>
  body {
    margin: 0;
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
    background: #f8f2e9;
    color: #4a3f35;
    font-family: system-ui, sans-serif;
  }
  main { text-align: center; padding: 2rem; }
  h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
  p { margin: 0.25rem 0; }
  .paw { font-size: 3rem; }
</style>
</head>
<body>
<main>
  <div class="paw">&#128062;</div>
  <h1>You are offline</h1>
  <p>The feeding log could not be reached.</p>
  <p>Reconnect and try again &mdash; your cats will wait.</p>
</main>
</body>
</html>
`

// fallbackDocument synthesizes the offline page for a failed navigation.
// It is served with status 200 so the client renders it as a page instead
// of a browser error.
func fallbackDocument(r *http.Request) *http.Response {
	body := []byte(fallbackHTML)
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}

// unavailableResponse synthesizes the answer for a non-navigation request
// when both store and network fail. The 503 tells the caller the result
// is non-authoritative.
func unavailableResponse(r *http.Request) *http.Response {
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{},
		Body:          io.NopCloser(bytes.NewReader(nil)),
		ContentLength: 0,
		Request:       r,
	}
}
