package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("exec: \"nope\": executable file not found in $PATH")
	err := fmt.Errorf("dispatch: %w", Wrap(KindLaunch, "execute", "unable to launch process", base))

	assert.Equal(t, KindLaunch, KindOf(err))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "unable to launch process", Message(err))
	assert.Contains(t, err.Error(), "executable file not found")
	assert.Equal(t, KindInternal, KindOf(base))
}

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindClient:      http.StatusBadRequest,
		KindConflict:    http.StatusConflict,
		KindLaunch:      http.StatusInternalServerError,
		KindUnsupported: http.StatusInternalServerError,
		KindNotFound:    http.StatusNotFound,
		KindForbidden:   http.StatusForbidden,
		KindInternal:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), string(kind))
	}
}
