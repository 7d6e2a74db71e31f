package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// listETag fingerprints a users page from what can change it: the paging
// window, the total, and each row's id and last update.
func listETag(resp ListUsersResponse) string {
	h := sha256.New()

	h.Write([]byte(strconv.Itoa(resp.TotalCount) + "|" + strconv.Itoa(resp.Page) + "|" + strconv.Itoa(resp.ItemsPerPage)))

	for _, u := range resp.Users {
		h.Write([]byte("|" + u.ID + "@" + u.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	}

	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// respondWithETag answers 304 when the client already holds etag.
func respondWithETag(ctx *gin.Context, etag string, payload interface{}) {
	ctx.Header("ETag", etag)

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(http.StatusOK, payload)
}

func etagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}

	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		// weak comparison, so W/"x" matches "x"
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == etag {
			return true
		}
	}

	return false
}
