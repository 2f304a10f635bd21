package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUser(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    User
		wantErr string
	}{
		{
			name: "bare record",
			body: `{"email":"r@court.example","role":"registrar","name":"R","contact_info":"ext 12"}`,
			want: User{Email: "r@court.example", Role: RoleRegistrar, Name: "R", ContactInfo: "ext 12"},
		},
		{
			name: "wrapped record",
			body: `{"user":{"email":"a@court.example","role":"super_admin"}}`,
			want: User{Email: "a@court.example", Role: RoleSuperAdmin},
		},
		{
			name: "extra fields ignored",
			body: `{"email":"t@court.example","role":"transcriber","id":7}`,
			want: User{Email: "t@court.example", Role: RoleTranscriber},
		},
		{name: "missing email", body: `{"role":"judge"}`, wantErr: "missing email"},
		{name: "unknown role", body: `{"email":"x@court.example","role":"janitor"}`, wantErr: "unknown role"},
		{name: "empty role", body: `{"email":"x@court.example"}`, wantErr: "unknown role"},
		{name: "not json", body: `<html>`, wantErr: "decode user"},
		{name: "wrapped null", body: `{"user":null}`, wantErr: "missing email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeUser([]byte(tt.body))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestRoleValid(t *testing.T) {
	for r := range knownRoles {
		assert.True(t, r.Valid(), "%q should be valid", r)
	}
	assert.Len(t, knownRoles, 9)
	for _, r := range []Role{"", "Admin", "root", "clerk"} {
		assert.False(t, r.Valid(), "%q should be invalid", r)
	}
}
