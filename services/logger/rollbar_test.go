package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{
			name: "message only",
			log:  func() { logger.Info("day closed") },
			want: "INFO: day closed\n",
		},
		{
			name: "error and user",
			log:  func() { logger.Error("closing day", errors.New("boom"), user.User{Username: "ama"}) },
			want: "ERROR: closing day err=\"boom\" user=ama\n",
		},
		{
			name: "extra data",
			log:  func() { logger.Warn("scan failed", map[string]interface{}{"reason": "not_found"}) },
			want: "WARN: scan failed reason=not_found\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			tc.log()
			assert.Equal(t, tc.want, buf.String())
		})
	}
}
