package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// VersionInfo: ответ /json/version отладочного порта Chrome.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ProbeDebugger опрашивает http://<addr>/json/version и возвращает WebSocket URL.
func ProbeDebugger(ctx context.Context, addr string) (*VersionInfo, error) {
	client := resty.New().SetTimeout(3 * time.Second)

	var info VersionInfo
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("http://" + addr + "/json/version")
	if err != nil {
		return nil, fmt.Errorf("debugger not reachable at %s: %w", addr, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("debugger at %s returned status %d", addr, resp.StatusCode())
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("debugger at %s returned no webSocketDebuggerUrl", addr)
	}
	return &info, nil
}
