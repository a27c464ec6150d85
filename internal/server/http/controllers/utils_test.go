package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rzbill/linelog/internal/device"
)

func TestWriteDeviceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{device.ErrNotFound, http.StatusNotFound},
		{device.ErrPendingTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: %w", device.ErrInterrupted, context.Canceled), http.StatusRequestTimeout},
		{fmt.Errorf("%w: %w", device.ErrInterrupted, context.DeadlineExceeded), http.StatusRequestTimeout},
		{device.ErrClosed, http.StatusServiceUnavailable},
		{device.ErrInterrupted, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeDeviceError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("%v: status %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if parseLimit("") != 0 || parseLimit("x") != 0 || parseLimit("-3") != 0 || parseLimit("7") != 7 {
		t.Fatalf("parseLimit")
	}
	if !parseBool("true") || !parseBool("1") || parseBool("") || parseBool("nope") {
		t.Fatalf("parseBool")
	}
	if n, err := parseInt("", 5); err != nil || n != 5 {
		t.Fatalf("parseInt default: %d %v", n, err)
	}
	if _, err := parseInt("abc", 0); err == nil {
		t.Fatalf("parseInt should reject non-numbers")
	}
}
