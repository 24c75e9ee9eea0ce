package serializer

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"time"
)

const capturedAtHeaderName = "Offcache-Captured-At"

// CapturedResponse is a complete response captured from the origin,
// together with the moment it was captured.
type CapturedResponse struct {
	Response *http.Response
	// The value of the clock at the time the response was received.
	CapturedAt time.Time
}

// CapturedToBytes serializes a captured response to its HTTP/1.1 wire
// representation. The capture time is carried in a private header that is
// stripped again on deserialization. The response body is consumed.
func CapturedToBytes(cr CapturedResponse) ([]byte, error) {
	res := cr.Response
	res.Header.Set(capturedAtHeaderName, strconv.FormatInt(cr.CapturedAt.Unix(), 10))
	buf := &bytes.Buffer{}
	err := res.Write(buf)
	res.Header.Del(capturedAtHeaderName)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToCaptured deserializes a stored response.
func BytesToCaptured(b []byte) (CapturedResponse, error) {
	cr := CapturedResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return cr, err
	}
	capturedInt, err := strconv.ParseInt(res.Header.Get(capturedAtHeaderName), 10, 64)
	if err != nil {
		return cr, err
	}
	res.Header.Del(capturedAtHeaderName)
	cr.Response = res
	cr.CapturedAt = time.Unix(capturedInt, 0)
	return cr, nil
}
