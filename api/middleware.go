package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxBodyBytes caps decoded request bodies. Attachments travel inline as
// data URIs, so the cap is generous.
const maxBodyBytes = 32 << 20

// GzipRequestMiddleware transparently inflates request bodies sent with
// Content-Encoding: gzip, up to limit decoded bytes. A body that is not
// valid gzip gets a 400.
func GzipRequestMiddleware(limit int64) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = maxBodyBytes
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
				if err := decompress(req, limit); err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
			}
			return next(c)
		}
	}
}

func decompress(req *http.Request, limit int64) error {
	raw := req.Body
	zr, err := gzip.NewReader(raw)
	if err != nil {
		_ = raw.Close()
		return err
	}
	req.Body = inflatedBody{Reader: io.LimitReader(zr, limit), zr: zr, raw: raw}
	req.ContentLength = -1
	req.Header.Del(echo.HeaderContentEncoding)
	req.Header.Del(echo.HeaderContentLength)
	return nil
}

func gzipEncoded(header string) bool {
	for _, enc := range strings.FieldsFunc(header, func(r rune) bool { return r == ',' || r == ' ' }) {
		if strings.EqualFold(enc, "gzip") {
			return true
		}
	}
	return false
}

// inflatedBody closes both the gzip stream and the original body.
type inflatedBody struct {
	io.Reader
	zr  *gzip.Reader
	raw io.Closer
}

func (b inflatedBody) Close() error {
	return firstErr(b.zr.Close(), b.raw.Close())
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
