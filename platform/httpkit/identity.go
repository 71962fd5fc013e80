// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity represents the authenticated user's identity.
// Handlers read it through this interface instead of gin context keys.
type Identity interface {
	// UserID returns the token subject.
	UserID() string
	// Name is the display name agents are recorded under on lead rows.
	Name() string
	// Branch is the dealership branch the user belongs to; empty for admins.
	Branch() string
	// Roles returns the user's assigned roles.
	Roles() []string
	// HasRole checks if the user has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

// identity is the concrete implementation of Identity.
type identity struct {
	userID        string
	name          string
	branch        string
	roles         []string
	authenticated bool
}

func (i *identity) UserID() string  { return i.userID }
func (i *identity) Name() string    { return i.name }
func (i *identity) Branch() string  { return i.branch }
func (i *identity) Roles() []string { return i.roles }

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// NewIdentity builds an authenticated identity. Used by jobs and tests that
// act without a request.
func NewIdentity(userID, name, branch string, roles ...string) Identity {
	return &identity{
		userID:        userID,
		name:          name,
		branch:        branch,
		roles:         roles,
		authenticated: true,
	}
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID := c.GetString(ContextUserIDKey)
	if userID == "" {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	return &identity{
		userID:        userID,
		name:          c.GetString(ContextNameKey),
		branch:        c.GetString(ContextBranchKey),
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}
