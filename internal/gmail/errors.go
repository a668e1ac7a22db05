package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/sajagshrestha/autofin-BE/internal/common"
)

// mapError translates Gmail API failures into the application's sentinel
// errors. notFound names the sentinel for a 404, because its meaning depends
// on the call: an expired history cursor on history.list, a deleted message
// on messages.get.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if isAuthRevoked(err) {
		return fmt.Errorf("gmail: %w", common.ErrAuthRevoked)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("gmail: %w", notFound)
		case http.StatusTooManyRequests:
			return common.NewRetryableError(fmt.Errorf("gmail: %w", common.ErrRateLimit), true)
		}
		if apiErr.Code >= 500 {
			return common.NewRetryableError(fmt.Errorf("gmail: server error %d: %w", apiErr.Code, err), true)
		}
	}

	return fmt.Errorf("gmail: %w", err)
}

// isAuthRevoked recognizes the two shapes of a dead credential: a 401 from
// the API and an invalid_grant from the token endpoint during refresh.
func isAuthRevoked(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return true
	}

	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		if tokenErr.ErrorCode == "invalid_grant" {
			return true
		}
		if tokenErr.Response != nil && tokenErr.Response.StatusCode == http.StatusBadRequest &&
			strings.Contains(string(tokenErr.Body), "invalid_grant") {
			return true
		}
	}

	return false
}
