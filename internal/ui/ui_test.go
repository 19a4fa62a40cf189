package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/rawws/internal/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_RenderKeepsParamOrder(t *testing.T) {
	out := NewHeader("rawws server", "rawws-server serve",
		Field{Key: "Listen", Value: "0.0.0.0:1337"},
		Field{Key: "TLS", Value: "disabled"},
		Field{Key: "Capture", Value: "off"},
	).SetWidth(80).Render()

	assert.Contains(t, out, "RAWWS SERVER")
	assert.Contains(t, out, "rawws-server serve")

	listen := strings.Index(out, "0.0.0.0:1337")
	tls := strings.Index(out, "disabled")
	capture := strings.Index(out, "off")
	require.True(t, listen >= 0 && tls >= 0 && capture >= 0, out)
	assert.Less(t, listen, tls)
	assert.Less(t, tls, capture)
}

func TestHeader_NoParams(t *testing.T) {
	out := (&Header{Title: "version", Command: "rawws-server version"}).Render()
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "rawws-server version")
}

func TestResult_Render(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Accept value computed", Field{Key: "Accept", Value: "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="}),
			want:   []string{"SUCCESS", "Accept value computed", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="},
		},
		{
			name:   "failure",
			result: NewFailureResult("Invalid key", errors.New("key must decode to 16 bytes"), "Copy the Sec-WebSocket-Key header value exactly"),
			want:   []string{"FAILED", "Invalid key", "key must decode to 16 bytes", "Troubleshooting:", "Copy the Sec-WebSocket-Key"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No servers found").AddDetail("Timeout", "5s"),
			want:   []string{"WARNING", "No servers found", "Timeout", "5s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(100).String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestRenderServices(t *testing.T) {
	services := []*discovery.Service{
		{Instance: "alpha", IP: "192.168.1.5", Port: 1337, Version: "1.2.0"},
		{Instance: "beta", IP: "192.168.1.6", Port: 8443, TLS: true},
	}

	out := RenderServices(services, 100)
	for _, want := range []string{"INSTANCE", "alpha", "ws://192.168.1.5:1337/", "beta", "wss://192.168.1.6:8443/", "1.2.0"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "beta"))
}

func TestRenderServices_Empty(t *testing.T) {
	out := RenderServices(nil, 80)
	assert.Contains(t, out, "No _rawws._tcp services found.")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  YES  \n", true},
		{"yes", true},
		{"no\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out bytes.Buffer
			got := Confirm(strings.NewReader(tt.input), &out, "Overwrite config", []string{"rawws.yaml exists"}, "yes")
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Overwrite config")
			if !tt.want {
				assert.Contains(t, out.String(), "Operation cancelled.")
			}
		})
	}
}

func TestScanModel_Done(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	found := []*discovery.Service{{Instance: "alpha", IP: "10.0.0.2", Port: 1337}}
	m := NewScanModel(ctx, cancel, func(context.Context) ([]*discovery.Service, error) {
		return found, nil
	}, time.Second)

	assert.Contains(t, m.View(), "Scanning for _rawws._tcp services")
	require.NotNil(t, m.Init())

	msg := m.runScan()
	next, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	done := next.(ScanModel)
	assert.Equal(t, found, done.Services())
	assert.NoError(t, done.Err())
	assert.False(t, done.Cancelled())
	assert.Empty(t, done.View())
}

func TestScanModel_QuitCancelsScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewScanModel(ctx, cancel, func(ctx context.Context) ([]*discovery.Service, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, time.Second)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.True(t, next.(ScanModel).Cancelled())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestScanModel_ScanError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewScanModel(ctx, cancel, func(context.Context) ([]*discovery.Service, error) {
		return nil, errors.New("no multicast interface")
	}, time.Second)

	next, _ := m.Update(m.runScan())
	assert.EqualError(t, next.(ScanModel).Err(), "no multicast interface")
}
