package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordPolicyViolation(t *testing.T) {
	commonPasswordsOnce.Do(loadCommonPasswords)

	tests := []struct {
		name    string
		pwd     string
		uname   string
		email   string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg123!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Mariam2024!", uname: "mariam2024", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Tr0ub4dor&3x", uname: "teacher1", email: "t1@school.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTag, passwordPolicyViolation(tt.pwd, "", tt.uname, tt.email))
		})
	}
}

func TestUserRoles(t *testing.T) {
	assert.True(t, (&User{Roles: []string{RoleAdmin}}).IsAdmin())
	assert.False(t, (&User{Roles: []string{RoleTeacher}}).IsAdmin())
	assert.Equal(t, 20, MaxRolePriority([]string{RoleTeacher, RoleAdmin}))
	assert.Equal(t, 0, MaxRolePriority(nil))
}
