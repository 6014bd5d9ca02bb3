// Package clerk receives Clerk webhook events and mirrors them into the
// local user directory.
package clerk

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/directory"
)

// MaxTimestampSkew bounds how old (or future-dated) a webhook delivery may be.
const MaxTimestampSkew = 5 * time.Minute

var (
	ErrMissingHeaders   = errors.New("missing svix headers")
	ErrBadSecret        = errors.New("malformed webhook secret")
	ErrTimestampTooOld  = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Event is the Clerk webhook envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserData is the user payload of user.* events. Timestamps are millisecond
// epochs.
type UserData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

func (u UserData) name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u UserData) email() string {
	if len(u.EmailAddresses) == 0 {
		return ""
	}
	return u.EmailAddresses[0].EmailAddress
}

// VerifySignature checks a svix-style webhook signature. The signed content
// is "{id}.{timestamp}.{payload}" HMAC-SHA256'd under the base64 secret
// carried after the whsec_ prefix, and the signature header lists
// space-separated "v1,<base64>" candidates.
func VerifySignature(secret, msgID, timestamp string, payload []byte, sigHeader string) error {
	if msgID == "" || timestamp == "" || sigHeader == "" {
		return ErrMissingHeaders
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return ErrBadSecret
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrTimestampTooOld
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew > MaxTimestampSkew || skew < -MaxTimestampSkew {
		return ErrTimestampTooOld
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, entry := range strings.Split(sigHeader, " ") {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Directory is the slice of the user directory the webhook needs.
type Directory interface {
	UpsertFromIdentity(ctx context.Context, p directory.IdentityProfile) (*directory.User, error)
	DeleteByClerkID(ctx context.Context, clerkID string) error
}

// Handler receives Clerk webhook deliveries.
type Handler struct {
	secret string
	dir    Directory
	log    zerolog.Logger
}

func NewHandler(secret string, dir Directory, log zerolog.Logger) *Handler {
	return &Handler{secret: secret, dir: dir, log: log}
}

// RegisterRoutes mounts the webhook endpoint. It must sit outside the
// authenticated API group; Clerk authenticates with the signature instead.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/clerk", h.Receive)
}

func (h *Handler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	// Without a configured secret (local development) verification is
	// skipped.
	if h.secret != "" {
		err := VerifySignature(
			h.secret,
			c.Request().Header.Get("svix-id"),
			c.Request().Header.Get("svix-timestamp"),
			payload,
			c.Request().Header.Get("svix-signature"),
		)
		if err != nil {
			h.log.Warn().Err(err).Msg("clerk webhook rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
		}
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed event")
	}

	ctx := c.Request().Context()
	switch event.Type {
	case "user.created", "user.updated":
		var user UserData
		if err := json.Unmarshal(event.Data, &user); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed user data")
		}
		profile := directory.IdentityProfile{
			ClerkID:   user.ID,
			Name:      user.name(),
			Email:     user.email(),
			CreatedAt: time.UnixMilli(user.CreatedAt),
			UpdatedAt: time.UnixMilli(user.UpdatedAt),
		}
		if _, err := h.dir.UpsertFromIdentity(ctx, profile); err != nil {
			h.log.Error().Err(err).Str("clerk_id", user.ID).Msg("user sync failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "sync failed")
		}
		h.log.Info().Str("type", event.Type).Str("clerk_id", user.ID).Msg("user synced")
	case "user.deleted":
		var user UserData
		if err := json.Unmarshal(event.Data, &user); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed user data")
		}
		if err := h.dir.DeleteByClerkID(ctx, user.ID); err != nil {
			h.log.Error().Err(err).Str("clerk_id", user.ID).Msg("user delete failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "sync failed")
		}
		h.log.Info().Str("clerk_id", user.ID).Msg("user removed")
	default:
		// Unhandled event types are acknowledged so Clerk stops retrying.
		h.log.Debug().Str("type", event.Type).Msg("ignoring webhook event")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
