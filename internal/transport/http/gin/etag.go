package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// etagFor derives a content hash tag for a marshaled body.
func etagFor(body []byte, weak bool) string {
	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if weak {
		tag = "W/" + tag
	}
	return tag
}

// matchesETag checks an If-None-Match header value against the current tag.
// The header may carry "*" or a comma-separated tag list.
func matchesETag(header, tag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == tag {
			return true
		}
	}
	return false
}

// writeJSONWithCache writes v as JSON with ETag and Cache-Control headers,
// answering 304 when the client's If-None-Match already names the current
// content.
func writeJSONWithCache(
	c *gin.Context,
	status int,
	v any,
	cacheControl string,
	weak bool,
) {
	body, err := json.Marshal(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	tag := etagFor(body, weak)

	c.Header("ETag", tag)
	if cacheControl != "" {
		c.Header("Cache-Control", cacheControl)
	}

	if matchesETag(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(status, "application/json; charset=utf-8", body)
}
