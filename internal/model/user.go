package model

import (
	"encoding/json"
	"fmt"
)

// Role is a dashboard user role.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAdmin         Role = "admin"
	RoleCourtRecorder Role = "court_recorder"
	RoleRegistrar     Role = "registrar"
	RoleJudge         Role = "judge"
	RoleMagistrate    Role = "magistrate"
	RoleClerkOfCourt  Role = "clerk_of_court"
	RoleTranscriber   Role = "transcriber"
	RoleGeneralViewer Role = "general_viewer"
)

var knownRoles = map[Role]bool{
	RoleSuperAdmin:    true,
	RoleAdmin:         true,
	RoleCourtRecorder: true,
	RoleRegistrar:     true,
	RoleJudge:         true,
	RoleMagistrate:    true,
	RoleClerkOfCourt:  true,
	RoleTranscriber:   true,
	RoleGeneralViewer: true,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return knownRoles[r]
}

// User is the current-user record returned by the backend.
type User struct {
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	Name        string `json:"name"`
	ContactInfo string `json:"contact_info"`
}

// DecodeUser parses a current-user payload. The backend returns either the
// bare record or the record wrapped as {"user": {...}}.
func DecodeUser(data []byte) (*User, error) {
	var envelope struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	u := envelope.User
	if u == nil {
		u = &User{}
		if err := json.Unmarshal(data, u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
	}
	if u.Email == "" {
		return nil, fmt.Errorf("decode user: missing email")
	}
	if !u.Role.Valid() {
		return nil, fmt.Errorf("decode user: unknown role %q", u.Role)
	}
	return u, nil
}
